/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/noodl/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTCouplings is a Couplings for an MQTT client.
//
// Requests arrive on the InTopics.  A Response goes to its ReplyTo
// topic if it has one and to the OutTopic otherwise.
type MQTTCouplings struct {
	Client mqtt.Client

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint

	// InTopics is a comma-separated list of TOPIC or TOPIC:QOS.
	InTopics string

	// OutTopic can also have the form TOPIC:QOS.
	OutTopic string

	// InjectTopic puts the topic in incoming requests (as
	// "replyTo") that don't have a replyTo.
	InjectTopic bool

	InTimeout time.Duration

	Logger *zap.Logger

	incoming chan interface{}
	outbound chan *Response
	done     chan bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMQTTCouplings makes MQTTCouplings (and an unconnected client)
// based on the configuration.
func NewMQTTCouplings(ctx context.Context, cfg config.MQTTConfig, logger *zap.Logger) *MQTTCouplings {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &MQTTCouplings{
		Quiesce:   100,
		InTopics:  topicWithQoS(cfg.InTopic, cfg.QoS),
		OutTopic:  topicWithQoS(cfg.OutTopic, cfg.QoS),
		InTimeout: time.Second,
		Logger:    logger,

		incoming: make(chan interface{}),
		outbound: make(chan *Response),
		done:     make(chan bool),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		c.inHandler(ctx, msg)
	})

	c.Client = mqtt.NewClient(opts)

	return c
}

func topicWithQoS(topic string, qos byte) string {
	if topic == "" || strings.Contains(topic, ":") {
		return topic
	}
	return fmt.Sprintf("%s:%d", topic, qos)
}

// inHandler handles messages sent to us from the MQTT broker due to
// our subscriptions.
func (c *MQTTCouplings) inHandler(ctx context.Context, msg mqtt.Message) {
	var (
		x       interface{}
		payload = msg.Payload()
		topic   = msg.Topic()
	)
	c.Logger.Debug("incoming", zap.String("topic", topic), zap.ByteString("payload", payload))

	if err := json.Unmarshal(payload, &x); err != nil {
		c.Logger.Warn("couldn't JSON-parse payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	if m, is := x.(map[string]interface{}); is && c.InjectTopic {
		if _, have := m["replyTo"]; !have {
			m["replyTo"] = topic
		}
	}

	to := time.NewTimer(c.InTimeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
		c.Logger.Warn("not forwarding due to ctx.Done()")
	case c.incoming <- x:
	case <-to.C:
		c.Logger.Warn("not forwarding due to stall", zap.String("topic", topic))
	}
}

// Start creates the MQTT session, subscribes, and starts forwarding
// Responses to the broker.
func (c *MQTTCouplings) Start(ctx context.Context) error {
	c.Logger.Info("connecting to broker")
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	for _, topic := range strings.Split(c.InTopics, ",") {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		c.Logger.Info("subscribing", zap.String("topic", topic), zap.Uint8("qos", qos))
		if t := c.Client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.outLoop(ctx)
	}()

	return nil
}

// IO returns the channels.  The input is never exhausted; the done
// channel is closed by Stop.
func (c *MQTTCouplings) IO(ctx context.Context) (chan interface{}, chan *Response, chan bool, error) {
	return c.incoming, c.outbound, c.done, nil
}

// outLoop publishes Responses until the response channel is closed.
func (c *MQTTCouplings) outLoop(ctx context.Context) {
	for r := range c.outbound {
		topic, qos := c.destination(r)
		js, err := json.Marshal(r)
		if err != nil {
			c.Logger.Error("marshal", zap.Error(err))
			continue
		}
		token := c.Client.Publish(topic, qos, false, js)
		token.Wait()
		if err := token.Error(); err != nil {
			c.Logger.Error("publish", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// destination returns the topic and QoS for the Response.
func (c *MQTTCouplings) destination(r *Response) (string, byte) {
	topic, qos := parseTopic(c.OutTopic)
	if r.ReplyTo != "" {
		topic = r.ReplyTo
	}
	return topic, qos
}

// Stop terminates the MQTT session after outstanding Responses are
// published.
func (c *MQTTCouplings) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.done)
	})

	finished := make(chan bool)
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-ctx.Done():
	case <-finished:
	}

	c.Logger.Info("disconnecting")
	c.Client.Disconnect(c.Quiesce)
	return nil
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}
