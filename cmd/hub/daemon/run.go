package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/app"
	"github.com/asnowfix/alexfil-hub/internal/clock"
	"github.com/asnowfix/alexfil-hub/internal/config"
	"github.com/asnowfix/alexfil-hub/internal/global"
	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var simulate bool

func init() {
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "run against simulated radio and peripherals")
	Cmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hub in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.WithValue(cmd.Context(), global.SimulateKey, simulate)
		if !service.Interactive() {
			s, _, err := load(ctx)
			if err != nil {
				return err
			}
			return s.Run()
		}
		err := run(ctx, hlog.Logger.WithName("hub"))
		if errors.Is(err, app.ErrRestart) {
			return restart(hlog.Logger)
		}
		if hlog.IsContextCancellation(err) {
			return nil
		}
		return err
	},
}

func run(ctx context.Context, log logr.Logger) error {
	cfg, err := config.Load(options.Viper)
	if err != nil {
		return err
	}

	clk := clock.System()
	var devices *app.Devices
	if global.Simulated(ctx) {
		log.Info("Using simulated peripherals")
		sim := app.NewSim(clk)
		devices = sim.Devices(log.WithName("sim"), cfg)
		go sim.Spin(ctx, 50*time.Millisecond)
	} else {
		devices = app.OpenDevices(ctx, log.WithName("devices"), cfg)
	}

	a := app.New(ctx, log, clk, cfg, options.Viper, devices, global.Version(ctx))
	defer a.Close()
	if err := a.Setup(); err != nil {
		return err
	}
	return a.Run(ctx)
}

// restart replaces the process with a fresh copy of itself, same arguments
// and environment, so that saved credentials are picked up from scratch.
func restart(log logr.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable for restart: %w", err)
	}
	log.Info("Re-executing", "path", exe, "args", os.Args[1:])
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-executing %s: %w", exe, err)
	}
	return nil
}
