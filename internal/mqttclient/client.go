// Package mqttclient is the remote side of the hub MQTT interface, used by
// the command line to drive a running hub.
package mqttclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/mynet"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
)

const (
	BrokerService = "_mqtt._tcp"
	DefaultPort   = 1883
)

type Message struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type Client struct {
	Id        string
	mqtt      mqtt.Client
	brokerUrl *url.URL
	log       logr.Logger
	timeout   time.Duration
}

// NewClientE finds the broker and connects to it. where is a host or
// host:port, "me" for this machine, or empty to browse mDNS for the hub.
func NewClientE(ctx context.Context, log logr.Logger, where string, timeout time.Duration) (*Client, error) {
	clientId := fmt.Sprintf("%v%v", path.Base(os.Args[0]), os.Getpid())

	brokerUrl, err := lookupBroker(ctx, log, where, timeout)
	if err != nil {
		return nil, fmt.Errorf("could not find MQTT broker: %w", err)
	}
	log.V(1).Info("Using MQTT broker", "url", brokerUrl, "client_id", clientId)

	opts := mqtt.NewClientOptions()
	opts.SetClientID(clientId)
	opts.AddBroker(brokerUrl.String())
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(false)

	c := &Client{
		Id:        clientId,
		mqtt:      mqtt.NewClient(opts),
		brokerUrl: brokerUrl,
		log:       log,
		timeout:   timeout,
	}
	if err := c.wait(ctx, c.mqtt.Connect()); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", brokerUrl, err)
	}
	log.V(1).Info("MQTT client connected", "client_id", clientId)
	return c, nil
}

func (c *Client) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", c.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lookupBroker(ctx context.Context, log logr.Logger, where string, timeout time.Duration) (*url.URL, error) {
	switch where {
	case "":
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return mynet.LookupService(ctx, log, BrokerService)
	case "me":
		_, ip, err := mynet.MainInterface(log)
		if err != nil {
			return nil, err
		}
		return brokerURL(ip.String(), DefaultPort), nil
	}
	return parseBroker(where)
}

func parseBroker(where string) (*url.URL, error) {
	host, portStr, err := net.SplitHostPort(where)
	if err != nil {
		// no port
		return brokerURL(where, DefaultPort), nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid broker port %q", portStr)
	}
	return brokerURL(host, port), nil
}

func brokerURL(host string, port int) *url.URL {
	return &url.URL{Scheme: "tcp", Host: net.JoinHostPort(host, strconv.Itoa(port))}
}

func (c *Client) BrokerUrl() *url.URL {
	return c.brokerUrl
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.log.V(1).Info("Publishing", "topic", topic, "payload", string(payload))
	return c.wait(ctx, c.mqtt.Publish(topic, 1 /*qos:at-least-once*/, false, payload))
}

// Subscribe delivers the messages on topic until ctx ends. Messages that do
// not fit in the queue are dropped.
func (c *Client) Subscribe(ctx context.Context, topic string, qlen uint) (<-chan Message, error) {
	mch := make(chan Message, qlen)
	token := c.mqtt.Subscribe(topic, 1 /*at-least-once*/, func(client mqtt.Client, msg mqtt.Message) {
		select {
		case mch <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		default:
			c.log.Info("Subscriber queue full, dropping message", "topic", msg.Topic())
		}
	})
	if err := c.wait(ctx, token); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	c.log.V(1).Info("Subscribed", "topic", topic)

	go func() {
		<-ctx.Done()
		c.mqtt.Unsubscribe(topic)
	}()
	return mch, nil
}

func (c *Client) Close() {
	if c.mqtt.IsConnected() {
		c.mqtt.Disconnect(250 /* milliseconds */)
	}
}
