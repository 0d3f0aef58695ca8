package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/transport"
	"github.com/ValentinKolb/gombus/transport/tcp"
	"github.com/ValentinKolb/gombus/transport/tcppi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupTransportFlags adds the common transport flags to a command
func SetupTransportFlags(cmd *cobra.Command) {
	key := "ip"
	cmd.PersistentFlags().String(key, "127.0.0.1", WrapString("Numeric IPv4 address of the endpoint (tcp transport)"))

	key = "port"
	cmd.PersistentFlags().Int(key, 502, WrapString("TCP port of the endpoint (tcp transport)"))

	key = "node"
	cmd.PersistentFlags().String(key, "", WrapString("Node name of the endpoint - hostname or IP literal of any family, empty for any (tcp-pi transport)"))

	key = "service"
	cmd.PersistentFlags().String(key, "", WrapString("Service name or numeric port, empty for the default Modbus port 502 (tcp-pi transport)"))

	key = "unit"
	cmd.PersistentFlags().Int(key, 0xFF, WrapString("Unit/slave id (0-247, 255 restores the TCP default)"))

	key = "response-timeout"
	cmd.PersistentFlags().Duration(key, 500*time.Millisecond, WrapString("How long to wait for a confirmation or connect completion"))

	key = "byte-timeout"
	cmd.PersistentFlags().Duration(key, 500*time.Millisecond, WrapString("Allowed gap between two chunks of the same message. Negative disables the watchdog"))

	key = "recovery"
	cmd.PersistentFlags().Bool(key, false, WrapString("Enable link-level error recovery (flush or reconnect after transport failures)"))

	key = "backlog"
	cmd.PersistentFlags().Int(key, 1, WrapString("Maximum simultaneously served connections in listen mode"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Disable Nagle's algorithm on new connections"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Duration(key, 0, WrapString("TCP keep-alive period, 0 disables"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))

	key = "debug"
	cmd.PersistentFlags().Bool(key, false, WrapString("Hex-trace every sent and received chunk"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("gombus")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the transport configuration from viper
func GetConfig() common.Config {
	conf := common.DefaultConfig()
	conf.ResponseTimeout = viper.GetDuration("response-timeout")
	conf.ByteTimeout = viper.GetDuration("byte-timeout")
	if viper.GetBool("recovery") {
		conf.Recovery = common.RecoveryLink
	}
	conf.Debug = viper.GetBool("debug")
	conf.Backlog = viper.GetInt("backlog")
	conf.LogLevel = viper.GetString("log-level")
	conf.Socket.NoDelay = viper.GetBool("tcp-nodelay")
	conf.Socket.KeepAlivePeriod = viper.GetDuration("tcp-keepalive")
	return conf
}

// GetContext creates a transport context based on configuration
func GetContext() (*transport.Context, error) {
	conf := GetConfig()
	common.InitLoggers(conf)

	var ctx *transport.Context
	var err error

	switch viper.GetString("transport") {
	case "tcp":
		ctx, err = tcp.NewContext(viper.GetString("ip"), viper.GetInt("port"), &conf)
	case "tcp-pi":
		ctx, err = tcppi.NewContext(viper.GetString("node"), viper.GetString("service"), &conf)
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
	if err != nil {
		return nil, err
	}

	if err := ctx.SetUnitID(viper.GetInt("unit")); err != nil {
		return nil, err
	}
	return ctx, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
