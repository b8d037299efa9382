package daemon

import (
	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "daemon",
	Short: "AlexFil Hub daemon",
	Long:  "AlexFil Hub daemon: control loop, provisioning web server and embedded MQTT broker",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hlog.InitForDaemon(hlog.Options{
			Verbose: options.Flags.Verbose,
			Debug:   options.Flags.Debug,
			JSON:    options.Flags.Json,
			File:    options.Flags.LogFile,
		})
		return nil
	},
}
