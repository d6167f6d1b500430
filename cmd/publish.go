// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

var (
	publishBroker string
	publishPrefix string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish device pool changes to an MQTT broker",
	Long: `Poll the daemon's device list and publish it to MQTT.

Topics (retained):
  <prefix>/devices          JSON array of every ready device, on every change
  <prefix>/<serial>/state   {"serial", "state", "info"} per device event;
                            state is "device" or "detached"
  <prefix>/status           "online", or "offline" as the last will

Broker settings come from the [mqtt] config section or MQTT_BROKER,
MQTT_PORT, MQTT_USERNAME and MQTT_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&publishBroker, "broker", "", "Broker URL (default tcp://<MQTT_BROKER>:<MQTT_PORT>)")
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "Topic prefix (default adbhost)")
}

// publisher is the slice of an MQTT client the publish loop needs
type publisher interface {
	Publish(topic string, payload []byte) error
}

// mqttPublisher publishes retained messages through paho
type mqttPublisher struct {
	client  MQTT.Client
	qos     byte
	timeout time.Duration
}

func (p *mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

// deviceState is the payload of a per-device state topic
type deviceState struct {
	Serial string            `json:"serial"`
	State  string            `json:"state"`
	Info   map[string]string `json:"info,omitempty"`
	Time   time.Time         `json:"time"`
}

const stateDetached = "detached"

// topicSegment makes a serial safe to use as one topic level
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

func devicesTopic(prefix string) string {
	return prefix + "/devices"
}

func stateTopic(prefix, serial string) string {
	return prefix + "/" + topicSegment(serial) + "/state"
}

func statusTopic(prefix string) string {
	return prefix + "/status"
}

// publishSnapshot publishes the events of one poll. The full list is only
// republished when something changed. Failed polls publish nothing.
func publishSnapshot(pub publisher, prefix string, snap monitor.Snapshot, events []monitor.Event) error {
	if snap.Err != nil || len(events) == 0 {
		return nil
	}

	var errs []error
	for _, e := range events {
		state := deviceState{Serial: e.Serial, State: adb.DeviceStateReady, Info: e.Device.Info, Time: snap.Time}
		if e.Kind == monitor.EventDetached {
			state = deviceState{Serial: e.Serial, State: stateDetached, Time: snap.Time}
		}
		payload, err := json.Marshal(state)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := pub.Publish(stateTopic(prefix, e.Serial), payload); err != nil {
			errs = append(errs, err)
		}
	}

	devices := snap.Devices
	if devices == nil {
		devices = []adb.DeviceInfo{}
	}
	payload, err := json.Marshal(devices)
	if err != nil {
		errs = append(errs, err)
	} else if err := pub.Publish(devicesTopic(prefix), payload); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func newMQTTClient(c MQTTConfig, brokerURL, prefix string) MQTT.Client {
	opts := MQTT.NewClientOptions().AddBroker(brokerURL)
	opts.SetClientID("adbhost-" + uuid.NewString())
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetWill(statusTopic(prefix), "offline", c.QoS, true)
	opts.SetOnConnectHandler(func(client MQTT.Client) {
		client.Publish(statusTopic(prefix), c.QoS, true, "online")
		logger.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(client MQTT.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	return MQTT.NewClient(opts)
}

func runPublish(cmd *cobra.Command, args []string) error {
	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}

	brokerURL := fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
	if publishBroker != "" {
		brokerURL = publishBroker
	}
	prefix := cfg.MQTT.Prefix
	if publishPrefix != "" {
		prefix = strings.Trim(publishPrefix, "/")
	}

	client := newMQTTClient(cfg.MQTT, brokerURL, prefix)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connection failed: %w", token.Error())
	}
	defer func() {
		client.Publish(statusTopic(prefix), cfg.MQTT.QoS, true, "offline").WaitTimeout(time.Second)
		client.Disconnect(250)
	}()

	pub := &mqttPublisher{client: client, qos: cfg.MQTT.QoS, timeout: 5 * time.Second}
	poller := &monitor.Poller{Lister: srv, Interval: cfg.MonitorInterval}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("daemon", connInfo).Str("prefix", prefix).Msg("publishing")
	err = poller.Run(ctx, func(snap monitor.Snapshot, events []monitor.Event) {
		if snap.Err != nil {
			logger.Warn().Str("kind", adb.Classify(snap.Err).String()).Err(snap.Err).Msg("poll failed")
			return
		}
		logWarnings(adb.DevicesCommand, snap.Warnings)
		if err := publishSnapshot(pub, prefix, snap, events); err != nil {
			logger.Error().Err(err).Msg("publish failed")
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
