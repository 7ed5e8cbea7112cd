// Package telemetry mirrors engine events and periodic status snapshots to
// an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/afterfire/pkg/events"
)

const publishTimeout = 2 * time.Second

// publisher is the part of mqtt.Client used after connecting.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Reporter publishes to <prefix>/events/<name> and <prefix>/status.
type Reporter struct {
	client mqtt.Client
	pub    publisher
	prefix string
}

// Connect dials broker (e.g. tcp://localhost:1883) with auto-reconnect.
func Connect(broker, prefix string) (*Reporter, error) {
	host, _ := os.Hostname()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("afterfire-%s-%d", host, time.Now().Unix()))
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logrus.WithField("broker", broker).Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logrus.WithError(err).WithField("broker", broker).Warn("mqtt connection lost, reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to mqtt broker %s", broker)
	}

	return &Reporter{client: client, pub: client, prefix: prefix}, nil
}

// Run forwards hub events and publishes status() every interval until ctx
// is done.
func (r *Reporter) Run(ctx context.Context, hub *events.Hub, status func() any, interval time.Duration) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.publish(r.prefix+"/events/"+ev.Name, false, []byte(ev.Data))
		case <-ticker.C:
			b, err := json.Marshal(status())
			if err != nil {
				logrus.WithError(err).Warn("failed to marshal status for mqtt")
				continue
			}
			r.publish(r.prefix+"/status", true, b)
		}
	}
}

func (r *Reporter) publish(topic string, retained bool, payload []byte) {
	token := r.pub.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		logrus.WithField("topic", topic).Warn("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		logrus.WithError(err).WithField("topic", topic).Warn("mqtt publish failed")
	}
}

func (r *Reporter) Close() {
	if r.client != nil {
		r.client.Disconnect(250)
	}
}
