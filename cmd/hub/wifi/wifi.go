package wifi

import (
	"fmt"

	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/asnowfix/alexfil-hub/internal/prefs"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "wifi",
	Short: "Show or change the saved WiFi credentials",
	Long:  "Show or change the saved WiFi credentials. The running hub picks them up at its next restart or reconnect attempt.",
	Args:  cobra.NoArgs,
}

var showPassword bool

func init() {
	showCmd.Flags().BoolVar(&showPassword, "password", false, "show the password in clear")
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(clearCmd)
}

func open() (*prefs.Store, *prefs.Credentials, error) {
	path := options.Viper.GetString("prefs.path")
	store, err := prefs.Open(hlog.Logger.WithName("prefs"), path)
	if err != nil {
		return nil, nil, err
	}
	return store, prefs.NewCredentials(store), nil
}

type shown struct {
	SSID     string `json:"ssid" yaml:"ssid"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Saved    bool   `json:"saved" yaml:"saved"`
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, creds, err := open()
		if err != nil {
			return err
		}
		defer store.Close()

		c := creds.Load(cmd.Context())
		out := shown{SSID: c.SSID, Saved: !c.Empty()}
		switch {
		case showPassword:
			out.Password = c.Password
		case c.Password != "":
			out.Password = "********"
		}
		return options.PrintResult(out)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <ssid> [password]",
	Short: "Save the station credentials",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := device.Credentials{SSID: args[0]}
		if len(args) > 1 {
			c.Password = args[1]
		}
		if c.Empty() {
			return fmt.Errorf("empty SSID")
		}

		store, creds, err := open()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := creds.Save(cmd.Context(), c); err != nil {
			return err
		}
		return options.PrintResult(shown{SSID: c.SSID, Saved: true})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, creds, err := open()
		if err != nil {
			return err
		}
		defer store.Close()
		return creds.Clear(cmd.Context())
	},
}
