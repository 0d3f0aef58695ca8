package read

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/gombus/cmd/util"
	"github.com/ValentinKolb/gombus/mbap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ReadCmd reads holding registers from a remote Modbus server
	ReadCmd = &cobra.Command{
		Use:     "read",
		Short:   "Read holding registers from a Modbus server",
		Long:    "Connect to a Modbus server, issue one read-holding-registers request and print the returned register values.",
		PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
		RunE:    run,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common transport flags
	util.SetupTransportFlags(ReadCmd)

	key := "address"
	ReadCmd.PersistentFlags().Int(key, 0, util.WrapString("Register address to start reading at"))

	key = "quantity"
	ReadCmd.PersistentFlags().Int(key, 1, util.WrapString("Number of registers to read (1-125)"))
}

func run(_ *cobra.Command, _ []string) error {
	addr := viper.GetInt("address")
	quantity := viper.GetInt("quantity")
	if quantity < 1 || quantity > 125 {
		return fmt.Errorf("quantity %d out of range [1,125]", quantity)
	}

	ctx, err := util.GetContext()
	if err != nil {
		return err
	}

	if err := ctx.Connect(); err != nil {
		return err
	}
	defer ctx.Close()

	// The request is just the preset header, there is no payload to append
	req := make([]byte, mbap.MaxADULength)
	n := ctx.BuildRequest(req, mbap.FcReadHoldingRegisters, uint16(addr), uint16(quantity))
	req = req[:n]

	if _, err := ctx.Send(req); err != nil {
		return err
	}

	rsp := make([]byte, mbap.MaxADULength)
	rspLength, err := ctx.ReceiveConfirmation(req, rsp)
	if err != nil {
		return err
	}
	rsp = rsp[:rspLength]

	if mbap.IsException(mbap.FunctionCode(rsp)) {
		return fmt.Errorf("server answered with exception code 0x%02X", rsp[mbap.HeaderLength+1])
	}

	byteCount := int(rsp[mbap.HeaderLength+1])
	for i := 0; i < byteCount/2; i++ {
		value := binary.BigEndian.Uint16(rsp[mbap.HeaderLength+2+2*i:])
		fmt.Printf("reg[%d] = 0x%04X (%d)\n", addr+i, value, value)
	}
	return nil
}
