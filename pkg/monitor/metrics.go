// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

const metricsNamespace = "adbhost"

// Metrics exports poll and exchange outcomes to prometheus. A nil *Metrics
// records nothing.
type Metrics struct {
	polls            *prometheus.CounterVec
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	lengthMismatches prometheus.Counter
	devices          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "polls_total",
				Help:      "Device listing polls by result.",
			},
			[]string{"result"},
		),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "exchanges_total",
				Help:      "Host protocol exchanges by service and result.",
			},
			[]string{"command", "result"},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "exchange_duration_seconds",
				Help:      "Host protocol exchange duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		lengthMismatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "length_mismatch_total",
				Help:      "Responses whose declared length disagreed with the body.",
			},
		),
		devices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "devices",
				Help:      "Ready devices in the last successful listing.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.polls, m.exchanges, m.exchangeDuration, m.lengthMismatches, m.devices)
	}
	return m
}

// ObserveExchange records one exchange.
func (m *Metrics) ObserveExchange(command string, duration time.Duration, warnings []adb.Warning, err error) {
	if m == nil {
		return
	}
	label := CommandLabel(command)
	switch adb.Classify(err) {
	case adb.KindEncodingOverflow, adb.KindDecoding:
		label = labelOther
	}
	m.exchanges.WithLabelValues(label, adb.Classify(err).String()).Inc()
	m.exchangeDuration.WithLabelValues(label).Observe(duration.Seconds())
	for _, w := range warnings {
		if w.Kind == adb.WarnLengthMismatch {
			m.lengthMismatches.Inc()
		}
	}
}

// ObservePoll records one listing poll.
func (m *Metrics) ObservePoll(snap Snapshot) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(adb.Classify(snap.Err).String()).Inc()
	m.ObserveExchange(adb.DevicesCommand, snap.Duration, snap.Warnings, snap.Err)
	if snap.Err == nil {
		m.devices.Set(float64(len(snap.Devices)))
	}
}

// labelOther is the command label of every request outside the known
// services.
const labelOther = "other"

// hostFamilies prefix host requests. All but "host" carry a device id
// before the service: "host-serial:<serial>:<service>".
var hostFamilies = map[string]bool{
	"host":              true,
	"host-serial":       true,
	"host-usb":          true,
	"host-local":        true,
	"host-transport-id": true,
}

var hostServices = map[string]bool{
	"version":         true,
	"kill":            true,
	"devices":         true,
	"devices-l":       true,
	"track-devices":   true,
	"features":        true,
	"host-features":   true,
	"transport":       true,
	"transport-any":   true,
	"transport-usb":   true,
	"transport-local": true,
	"tport":           true,
	"connect":         true,
	"disconnect":      true,
	"reconnect":       true,
	"get-state":       true,
	"get-serialno":    true,
	"get-devpath":     true,
	"forward":         true,
	"killforward":     true,
	"list-forward":    true,
}

var deviceServices = map[string]bool{
	"devices":     true,
	"shell":       true,
	"exec":        true,
	"sync":        true,
	"reboot":      true,
	"remount":     true,
	"root":        true,
	"unroot":      true,
	"tcpip":       true,
	"usb":         true,
	"framebuffer": true,
	"jdwp":        true,
	"track-jdwp":  true,
	"reverse":     true,
	"abb":         true,
	"abb_exec":    true,
}

// CommandLabel reduces a request to one of a fixed set of service labels so
// request text never becomes a label value: "shell:ls -l" is "shell",
// "host:version" is "host:version", "host-serial:<serial>:get-state" is
// "host-serial:get-state". Unknown host services collapse to their family
// and anything else is "other".
func CommandLabel(command string) string {
	service, _, _ := strings.Cut(command, " ")
	head, rest, found := strings.Cut(service, ":")

	if !hostFamilies[head] {
		if deviceServices[head] {
			return head
		}
		return labelOther
	}
	if !found {
		return labelOther
	}

	svc, _, _ := strings.Cut(rest, ":")
	if head != "host" {
		// the device id may itself contain colons (ip:port)
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return head
		}
		svc = rest[i+1:]
	}
	if hostServices[svc] {
		return head + ":" + svc
	}
	return head
}
