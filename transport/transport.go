// Package transport carries control-plane and audio messages between a
// sink and the rest of the system over NATS, replacing the MQTT broker
// connection the project's comms package used for the same purpose.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// IOMsg is a message either received from or destined for the wire.
type IOMsg struct {
	Subject string
	Data    []byte
}

// ControlMsg is the JSON envelope exchanged on the control-plane subjects:
// a slave-method change, a latency value in microseconds, and a warning
// text, each optional.
type ControlMsg struct {
	SinkID      string  `json:"sinkId"`
	SlaveMethod *string `json:"slaveMethod,omitempty"`
	LatencyUs   *int64  `json:"latencyUs,omitempty"`
	Warning     *string `json:"warning,omitempty"`
}

// Settings configures a Client.
type Settings struct {
	URL       string
	SinkID    string // defaults to a fresh uuid if empty
	ToWire    chan IOMsg
	AudioSubj string // subject audio packets are published/subscribed on
	OnAudio   func(data []byte)
}

// Client is a NATS connection carrying one sink's control-plane traffic and
// its audio subject subscription.
type Client struct {
	settings Settings
	conn     *nats.Conn
	sub      *nats.Subscription
}

// Connect dials the NATS server and subscribes to the configured audio
// subject. It auto-reconnects using the client library's own backoff, the
// same reconnection contract the project's MQTT client relied on.
func Connect(s Settings) (*Client, error) {
	if s.SinkID == "" {
		s.SinkID = uuid.NewString()
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Println("transport: disconnected:", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Println("transport: reconnected")
		}),
	}

	conn, err := nats.Connect(s.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}

	c := &Client{settings: s, conn: conn}

	if s.AudioSubj != "" && s.OnAudio != nil {
		sub, err := conn.Subscribe(s.AudioSubj, func(msg *nats.Msg) {
			s.OnAudio(msg.Data)
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: subscribe %s: %w", s.AudioSubj, err)
		}
		c.sub = sub
	}

	if s.ToWire != nil {
		go c.publishLoop()
	}

	return c, nil
}

func (c *Client) publishLoop() {
	for msg := range c.settings.ToWire {
		if err := c.conn.Publish(msg.Subject, msg.Data); err != nil {
			log.Println("transport: publish:", err)
		}
	}
}

// PublishControl marshals and publishes a control message on
// "sink.<sinkId>.control".
func (c *Client) PublishControl(msg ControlMsg) error {
	msg.SinkID = c.settings.SinkID
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Publish("sink."+c.settings.SinkID+".control", data)
}

// SubscribeControl subscribes cb to this sink's control subject.
func (c *Client) SubscribeControl(cb func(ControlMsg)) (*nats.Subscription, error) {
	return c.conn.Subscribe("sink."+c.settings.SinkID+".control", func(m *nats.Msg) {
		var msg ControlMsg
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Println("transport: bad control message:", err)
			return
		}
		cb(msg)
	})
}

// Close unsubscribes and closes the connection.
func (c *Client) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.conn.Close()
}
