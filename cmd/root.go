package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/gombus/cmd/read"
	"github.com/ValentinKolb/gombus/cmd/serve"
	"github.com/ValentinKolb/gombus/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gombus",
		Short: "Modbus TCP transport toolkit",
		Long: fmt.Sprintf(`gombus (v%s)

A Modbus TCP / TCP-PI transport library written in Go, with a
minimal client and slave for link testing.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gombus",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gombus v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(read.ReadCmd)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, tcp-pi)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
