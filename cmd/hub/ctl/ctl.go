package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/asnowfix/alexfil-hub/cmd/hub/options"
	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/mqtt"
	"github.com/asnowfix/alexfil-hub/internal/mqttclient"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "ctl",
	Short: "Drive a running hub over MQTT",
	Args:  cobra.NoArgs,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&options.Flags.MqttBroker, "broker", "B", "", "MQTT broker `host[:port]` (default: look the hub up over mDNS)")
	Cmd.PersistentFlags().DurationVarP(&options.Flags.MqttTimeout, "timeout", "T", 5*time.Second, "MQTT lookup and operation timeout")
	Cmd.AddCommand(motorCmd)
	Cmd.AddCommand(configCmd)
	Cmd.AddCommand(watchCmd)
}

func connect(ctx context.Context) (*mqttclient.Client, error) {
	return mqttclient.NewClientE(ctx, hlog.Logger.WithName("mqtt"), options.Flags.MqttBroker, options.Flags.MqttTimeout)
}

func send(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	mc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer mc.Close()
	if err := mc.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return printMessage(topic, payload)
}

func printMessage(topic string, payload []byte) error {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		v = string(payload)
	}
	return options.PrintResult(map[string]any{"topic": topic, "payload": v})
}

var motorCmd = &cobra.Command{
	Use:       "motor <forward|backward|stop|set> [speed]",
	Short:     "Send a motor command",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"forward", "backward", "stop", "set"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c := mqtt.MotorCommand{Action: args[0]}
		switch c.Action {
		case "forward", "backward", "stop", "set":
		default:
			return fmt.Errorf("unknown action %q", c.Action)
		}
		if len(args) > 1 {
			speed, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[1], err)
			}
			c.Speed = json.RawMessage(strconv.Itoa(speed))
		}
		return send(cmd.Context(), mqtt.TopicCmdMotor, c)
	},
}

var configCmd = &cobra.Command{
	Use:   "config <param> <value>",
	Short: "Send a configuration command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		return send(cmd.Context(), mqtt.TopicCmdConfig, mqtt.ConfigCommand{
			Param: args[0],
			Value: json.RawMessage(strconv.Itoa(value)),
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the hub status and telemetry until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mc, err := connect(ctx)
		if err != nil {
			return err
		}
		defer mc.Close()

		status, err := mc.Subscribe(ctx, mqtt.TopicStatus, 4)
		if err != nil {
			return err
		}
		telemetry, err := mc.Subscribe(ctx, mqtt.TopicTelemetry, 16)
		if err != nil {
			return err
		}

		for {
			var m mqttclient.Message
			select {
			case <-ctx.Done():
				return nil
			case m = <-status:
			case m = <-telemetry:
			}
			if err := printMessage(m.Topic, m.Payload); err != nil {
				return err
			}
		}
	},
}
