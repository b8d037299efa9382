package options

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/global"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var Flags struct {
	Verbose     bool
	Debug       bool
	Json        bool
	ConfigFile  string
	LogFile     string
	MqttBroker  string
	MqttTimeout time.Duration
}

// Viper holds the configuration loaded by the root command.
var Viper *viper.Viper

// CommandLineContext returns a context cancelled on SIGINT or SIGTERM. Its
// cancel function is stored under global.CancelKey.
func CommandLineContext(ctx context.Context, log logr.Logger, version string) context.Context {
	ctx = logr.NewContext(ctx, log)
	ctx = context.WithValue(ctx, global.VersionKey, version)
	ctx, cancel := context.WithCancel(ctx)
	ctx = context.WithValue(ctx, global.CancelKey, cancel)
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-signals:
			log.Info("Received signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func PrintResult(out any) error {
	if Flags.Json {
		s, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Println(string(s))
	} else {
		s, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Print(string(s))
	}
	return nil
}
