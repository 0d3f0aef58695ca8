package serve

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/ValentinKolb/gombus/cmd/util"
	"github.com/ValentinKolb/gombus/mbap"
	"github.com/ValentinKolb/gombus/server"
	"github.com/ValentinKolb/gombus/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// registerCount is the size of the simulated holding-register space
	registerCount = 1024

	excIllegalFunction    = 0x01
	excIllegalDataAddress = 0x02
)

var (
	// ServeCmd runs a minimal Modbus slave for link testing
	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Run a minimal Modbus slave",
		Long:    "Listen for Modbus masters and answer read-register requests from a zero-initialized register space. Useful for exercising the transport against real clients.",
		PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
		RunE:    run,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common transport flags
	util.SetupTransportFlags(ServeCmd)

	key := "metrics-addr"
	ServeCmd.PersistentFlags().String(key, "", util.WrapString("Expose transport metrics in Prometheus format on this address (e.g. :9090). Empty disables the endpoint"))
}

func run(_ *cobra.Command, _ []string) error {
	ctx, err := util.GetContext()
	if err != nil {
		return err
	}

	if addr := viper.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			transport.WriteMetrics(w)
		})
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics endpoint failed: %v\n", err)
			}
		}()
	}

	// The register table is shared between all served connections
	var mu sync.Mutex
	registers := make([]uint16, registerCount)

	s := server.New(ctx, func(ctx *transport.Context, req []byte) []byte {
		mu.Lock()
		defer mu.Unlock()
		return answer(ctx, registers, req)
	})
	return s.Serve()
}

// answer implements just enough PDU logic to make the slave useful for
// link testing: register reads and single-register writes against an
// in-memory table, an exception for everything else.
func answer(ctx *transport.Context, registers []uint16, req []byte) []byte {
	sft := mbap.SFTFromADU(req)
	rsp := make([]byte, mbap.MaxADULength)

	switch sft.Function {
	case mbap.FcReadHoldingRegisters, mbap.FcReadInputRegisters:
		addr := int(binary.BigEndian.Uint16(req[mbap.HeaderLength+1:]))
		quantity := int(binary.BigEndian.Uint16(req[mbap.HeaderLength+3:]))
		if quantity < 1 || addr+quantity > len(registers) {
			return exception(ctx, rsp, sft, excIllegalDataAddress)
		}

		n := ctx.BuildResponse(rsp, sft)
		rsp[n] = byte(2 * quantity)
		n++
		for i := 0; i < quantity; i++ {
			binary.BigEndian.PutUint16(rsp[n:], registers[addr+i])
			n += 2
		}
		return rsp[:n]

	case mbap.FcWriteSingleRegister:
		addr := int(binary.BigEndian.Uint16(req[mbap.HeaderLength+1:]))
		if addr >= len(registers) {
			return exception(ctx, rsp, sft, excIllegalDataAddress)
		}
		registers[addr] = binary.BigEndian.Uint16(req[mbap.HeaderLength+3:])

		// The confirmation of a single-register write echoes the request
		n := ctx.BuildResponse(rsp, sft)
		copy(rsp[n:], req[mbap.HeaderLength+1:mbap.HeaderLength+5])
		return rsp[:n+4]

	default:
		return exception(ctx, rsp, sft, excIllegalFunction)
	}
}

func exception(ctx *transport.Context, rsp []byte, sft mbap.SFT, code byte) []byte {
	sft.Function |= mbap.ExceptionFlag
	n := ctx.BuildResponse(rsp, sft)
	rsp[n] = code
	return rsp[:n+1]
}
