package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisper-gateway/config"
	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report the compute device the service would select",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, envFile)
			if err != nil {
				return err
			}
			policy, err := cfg.Device.Policy()
			if err != nil {
				return err
			}

			logCfg := cfg.Logging
			logCfg.Output = "stderr"
			log := logger.New(&logCfg, cfg.Name)

			profile, probe := device.Select(cmd.Context(), device.NewSMIProber(), policy, log)
			device.Report(log, profile, probe)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"profile": profile,
				"probe":   probe,
			})
		},
	}
}
