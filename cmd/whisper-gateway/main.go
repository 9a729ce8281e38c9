// Command whisper-gateway serves a local speech-to-text model over HTTP.
//
// Usage:
//
//	whisper-gateway [command] [flags]
//
// Commands:
//
//	serve   - load the model and serve the HTTP API (default)
//	probe   - report the compute device the service would select
//	version - print build information
//
// Configuration is read from an optional YAML file, the host environment
// file (default /etc/whisper-gateway/environment) and the process
// environment, in increasing order of precedence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisper-gateway/config"
)

var (
	configFile string
	envFile    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whisper-gateway",
		Short:         "Local speech-to-text HTTP gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "environment file written by the installer")

	root.AddCommand(newServeCmd(), newProbeCmd(), newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
