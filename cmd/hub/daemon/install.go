package daemon

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/app"
	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

func init() {
	Cmd.AddCommand(installCmd)
	Cmd.AddCommand(uninstallCmd)
}

// exit is replaced in tests.
var exit = os.Exit

// hubService lets kardianos/service start and stop the hub.
type hubService struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logr.Logger
	run    func(ctx context.Context, log logr.Logger) error
	wg     sync.WaitGroup
}

func (h *hubService) Start(s service.Service) error {
	// Start should not block.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := h.run(h.ctx, h.log)
		if errors.Is(err, app.ErrRestart) {
			err = restart(h.log)
		}
		if h.ctx.Err() != nil {
			// stopped by the service manager
			return
		}
		if err == nil {
			err = errors.New("control loop returned")
		}
		hlog.ErrorIfNotCanceled(h.log, err, "Hub stopped")
		// let the service manager restart us
		exit(1)
	}()
	return nil
}

func (h *hubService) Stop(s service.Service) error {
	h.cancel()
	h.wg.Wait()
	return nil
}

func load(ctx context.Context) (service.Service, service.Logger, error) {
	log := hlog.Logger.WithName("hub")
	config := service.Config{
		Name:        "alexfil-hub",
		DisplayName: "AlexFil Hub",
		Description: "AlexFil Hub daemon, with WiFi provisioning, motor control and embedded MQTT broker",
		Arguments:   []string{"daemon", "run"},
		Dependencies: []string{
			"After=network-online.target NetworkManager.service",
			"Wants=network-online.target",
		},
	}

	ctx, cancel := context.WithCancel(ctx)
	s, err := service.New(&hubService{ctx: ctx, cancel: cancel, log: log, run: run}, &config)
	if err != nil {
		cancel()
		log.Error(err, "Failed to create (background) service")
		return nil, nil, err
	}
	logger, err := s.Logger(nil)
	if err != nil {
		cancel()
		log.Error(err, "Failed to create (background) service")
		return nil, nil, err
	}
	return s, logger, nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the hub as a " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, l, err := load(cmd.Context())
		if err != nil {
			return err
		}
		l.Info("Installing service")
		return s.Install()
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the hub " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, l, err := load(cmd.Context())
		if err != nil {
			return err
		}
		l.Info("Uninstalling service")
		return s.Uninstall()
	},
}
