package main

import (
	"context"
	"fmt"
	"os"

	"github.com/asnowfix/alexfil-hub/cmd/hub/ctl"
	"github.com/asnowfix/alexfil-hub/cmd/hub/daemon"
	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/asnowfix/alexfil-hub/cmd/hub/wifi"
	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/config"
	"github.com/asnowfix/alexfil-hub/internal/global"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "hub",
	Short: "AlexFil Hub: filament motor controller with WiFi provisioning and MQTT control",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hlog.Init(hlog.Options{
			Verbose: options.Flags.Verbose,
			Debug:   options.Flags.Debug,
			JSON:    options.Flags.Json,
			File:    options.Flags.LogFile,
		})
		log := hlog.Logger

		options.Viper = config.New(options.Flags.ConfigFile)
		if err := config.Read(options.Viper); err != nil {
			return err
		}
		log.V(1).Info("Configuration", "file", options.Viper.ConfigFileUsed())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(options.CommandLineContext(ctx, log, Version))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cancel, ok := cmd.Context().Value(global.CancelKey).(context.CancelFunc); ok {
			cancel()
		}
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Verbose, "verbose", "v", false, "verbose output")
	Cmd.PersistentFlags().BoolVar(&options.Flags.Debug, "debug", false, "debug output")
	Cmd.PersistentFlags().BoolVar(&options.Flags.Json, "json", false, "print results and logs as JSON")
	Cmd.PersistentFlags().StringVarP(&options.Flags.ConfigFile, "config", "c", "", "configuration `file` (default: hub.yaml in ., /etc/alexfil-hub, ~/.config/alexfil-hub)")
	Cmd.PersistentFlags().StringVar(&options.Flags.LogFile, "log-file", "", "rotating log `file` when not on a terminal")

	Cmd.AddCommand(daemon.Cmd)
	Cmd.AddCommand(wifi.Cmd)
	Cmd.AddCommand(ctl.Cmd)
	Cmd.AddCommand(versionCmd)
}

func main() {
	cobra.EnableTraverseRunHooks = true
	err := Cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
