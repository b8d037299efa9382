package main

import (
	"runtime/debug"

	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go" yaml:"go"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hub version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := versionInfo{Version: Version}
		if info, ok := debug.ReadBuildInfo(); ok {
			v.GoVersion = info.GoVersion
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					v.Revision = s.Value
				}
			}
		}
		return options.PrintResult(v)
	},
}
