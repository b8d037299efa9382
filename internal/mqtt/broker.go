package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-logr/logr"
	mochimqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/hooks/debug"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/spf13/viper"
)

const DefaultPort = 1883

// Broker is the embedded MQTT broker. The hub itself talks to it through
// the inline client.
type Broker struct {
	log     logr.Logger
	server  *mochimqtt.Server
	address string

	mu        sync.Mutex
	nextSubID int
}

// NewBroker builds a broker listening on address (e.g. "0.0.0.0:1883"),
// with options from the mqtt.broker section of v.
func NewBroker(log logr.Logger, v *viper.Viper, address string) (*Broker, error) {
	opts := loadBrokerConfig(log, v)
	opts.Logger = slog.New(logr.ToSlogHandler(log))
	opts.InlineClient = true

	server := mochimqtt.New(opts)

	if log.V(2).Enabled() {
		err := server.AddHook(&debug.Hook{
			Log: slog.New(logr.ToSlogHandler(log.WithName("debug"))),
		}, &debug.Options{
			ShowPacketData: true,
			ShowPings:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("adding MQTT debug hook: %w", err)
		}
	}

	// Allow all connections.
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("adding MQTT auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding TCP listener on %s: %w", address, err)
	}

	return &Broker{
		log:       log,
		server:    server,
		address:   address,
		nextSubID: 1,
	}, nil
}

// Start accepts connections in the background.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("starting MQTT server: %w", err)
	}
	b.log.Info("Now listening for MQTT connections", "address", b.address)
	return nil
}

// Subscribe registers handler for messages on filter, whoever publishes
// them. Handlers run on broker goroutines.
func (b *Broker) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.mu.Unlock()

	return b.server.Subscribe(filter, id, func(cl *mochimqtt.Client, sub packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	return b.server.Publish(topic, payload, retain, 0)
}

// Clients returns the IDs of the connected clients.
func (b *Broker) Clients() []string {
	clients := b.server.Clients.GetAll()
	ids := make([]string, 0, len(clients))
	for id, cl := range clients {
		if cl.Net.Inline {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// MonitorClients logs the connected clients every interval until ctx ends.
func (b *Broker) MonitorClients(ctx context.Context, interval time.Duration) {
	log := b.log.WithName("monitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Starting MQTT broker client monitoring", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping MQTT broker client monitoring")
			return
		case <-ticker.C:
			ids := b.Clients()
			log.Info("MQTT broker connected clients", "count", len(ids), "client_ids", ids)
		}
	}
}

func (b *Broker) Close() error {
	b.log.Info("Shutting down MQTT broker")
	return b.server.Close()
}
