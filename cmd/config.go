// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

const (
	envConfig       = "ADBHOST_CONFIG"
	envServerSocket = "ADB_SERVER_SOCKET"
	envMQTTBroker   = "MQTT_BROKER"
	envMQTTPort     = "MQTT_PORT"
	envMQTTUsername = "MQTT_USERNAME"
	envMQTTPassword = "MQTT_PASSWORD"
)

// Config is the resolved runtime configuration.
type Config struct {
	Host         netip.Addr
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	BridgeURL         string
	BridgeUsername    string
	BridgeNoSSLVerify bool

	MonitorInterval time.Duration
	ServeListen     string
	MQTT            MQTTConfig

	LogLevel string
}

// MQTTConfig holds broker settings for the publish command.
type MQTTConfig struct {
	Broker   string
	Port     int
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Host:            netip.MustParseAddr(adb.DefaultHost),
		Port:            adb.DefaultPort,
		ReadTimeout:     adb.DefaultReadTimeout,
		WriteTimeout:    adb.DefaultWriteTimeout,
		MonitorInterval: monitor.DefaultInterval,
		ServeListen:     "127.0.0.1:8037",
		MQTT: MQTTConfig{
			Broker: "localhost",
			Port:   1883,
			Prefix: "adbhost",
		},
		LogLevel: "info",
	}
}

// Server builds the daemon handle described by the config, without the
// bridge transport.
func (c Config) Server() adb.Server {
	return adb.NewServer(c.Host, c.Port, c.ReadTimeout, c.WriteTimeout)
}

func (c Config) validate() error {
	if !c.Host.IsValid() {
		return errors.New("invalid daemon host")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid daemon port %d", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MonitorInterval <= 0 {
		return errors.New("monitor interval must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", c.MQTT.QoS)
	}
	return nil
}

// fileConfig mirrors the TOML layout. Durations are strings so they can be
// written as "2s" or "500ms".
type fileConfig struct {
	Server struct {
		Host         string `toml:"host"`
		Port         int    `toml:"port"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
	} `toml:"server"`
	Bridge struct {
		URL         string `toml:"url"`
		Username    string `toml:"username"`
		NoSSLVerify bool   `toml:"no_ssl_verify"`
	} `toml:"bridge"`
	Monitor struct {
		Interval string `toml:"interval"`
	} `toml:"monitor"`
	Serve struct {
		Listen string `toml:"listen"`
	} `toml:"serve"`
	MQTT struct {
		Broker   string `toml:"broker"`
		Port     int    `toml:"port"`
		Username string `toml:"username"`
		Password string `toml:"password"`
		Prefix   string `toml:"prefix"`
		QoS      int    `toml:"qos"`
	} `toml:"mqtt"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// loadConfigFile overlays the keys present in the file onto cfg.
func loadConfigFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("server", "host") {
		host, err := parseHost(raw.Server.Host)
		if err != nil {
			return fmt.Errorf("parse server.host: %w", err)
		}
		cfg.Host = host
	}
	if meta.IsDefined("server", "port") {
		cfg.Port = raw.Server.Port
	}
	if meta.IsDefined("server", "read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Server.ReadTimeout))
		if err != nil {
			return fmt.Errorf("parse server.read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("server", "write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Server.WriteTimeout))
		if err != nil {
			return fmt.Errorf("parse server.write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}

	if meta.IsDefined("bridge", "url") {
		cfg.BridgeURL = strings.TrimSpace(raw.Bridge.URL)
	}
	if meta.IsDefined("bridge", "username") {
		cfg.BridgeUsername = strings.TrimSpace(raw.Bridge.Username)
	}
	if meta.IsDefined("bridge", "no_ssl_verify") {
		cfg.BridgeNoSSLVerify = raw.Bridge.NoSSLVerify
	}

	if meta.IsDefined("monitor", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Monitor.Interval))
		if err != nil {
			return fmt.Errorf("parse monitor.interval: %w", err)
		}
		cfg.MonitorInterval = d
	}

	if meta.IsDefined("serve", "listen") {
		cfg.ServeListen = strings.TrimSpace(raw.Serve.Listen)
	}

	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "port") {
		cfg.MQTT.Port = raw.MQTT.Port
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}
	if meta.IsDefined("mqtt", "prefix") {
		cfg.MQTT.Prefix = strings.Trim(strings.TrimSpace(raw.MQTT.Prefix), "/")
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return fmt.Errorf("parse mqtt.qos: must be 0, 1 or 2")
		}
		cfg.MQTT.QoS = byte(raw.MQTT.QoS)
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}

	return nil
}

// applyEnv overlays environment settings onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if socket := strings.TrimSpace(getenv(envServerSocket)); socket != "" {
		host, port, err := parseServerSocket(socket)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envServerSocket, err)
		}
		if host.IsValid() {
			cfg.Host = host
		}
		cfg.Port = port
	}

	if broker := getenv(envMQTTBroker); broker != "" {
		cfg.MQTT.Broker = broker
	}
	if raw := getenv(envMQTTPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envMQTTPort, err)
		}
		cfg.MQTT.Port = port
	}
	if username := getenv(envMQTTUsername); username != "" {
		cfg.MQTT.Username = username
		cfg.MQTT.Password = getenv(envMQTTPassword)
	}

	if lvl := getenv(envLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	return nil
}

// applyFlags overlays the root flags the user set explicitly.
func applyFlags(cfg *Config, changed func(name string) bool) error {
	if changed("host") {
		host, err := parseHost(serverHost)
		if err != nil {
			return fmt.Errorf("parse --host: %w", err)
		}
		cfg.Host = host
	}
	if changed("port") {
		cfg.Port = serverPort
	}
	if changed("read-timeout") {
		cfg.ReadTimeout = readTimeout
	}
	if changed("write-timeout") {
		cfg.WriteTimeout = writeTimeout
	}
	if changed("url") {
		cfg.BridgeURL = wsURL
	}
	if changed("username") {
		cfg.BridgeUsername = wsUsername
	}
	if changed("no-ssl-verify") {
		cfg.BridgeNoSSLVerify = wsNoSSLVerify
	}
	if changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return nil
}

// resolveConfig applies defaults, environment, config file and flags, in
// increasing order of precedence.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	resolved := DefaultConfig()
	if err := applyEnv(&resolved, os.Getenv); err != nil {
		return Config{}, err
	}

	path := os.Getenv(envConfig)
	if cmd.Flags().Changed("config") {
		path = configPath
	}
	if path != "" {
		if err := loadConfigFile(&resolved, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyFlags(&resolved, cmd.Flags().Changed); err != nil {
		return Config{}, err
	}
	if err := resolved.validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// parseServerSocket accepts the forms adb clients use for
// ADB_SERVER_SOCKET: "tcp:port", "tcp:host:port" and "tcp:[v6]:port". A
// port-only socket returns an invalid host.
func parseServerSocket(socket string) (netip.Addr, int, error) {
	rest, ok := strings.CutPrefix(socket, "tcp:")
	if !ok {
		return netip.Addr{}, 0, fmt.Errorf("unsupported socket %q (only tcp: is supported)", socket)
	}

	hostPart, portPart := "", rest
	if strings.Contains(rest, ":") {
		h, p, err := net.SplitHostPort(rest)
		if err != nil {
			return netip.Addr{}, 0, err
		}
		hostPart, portPart = h, p
	}

	port, err := strconv.Atoi(portPart)
	if err != nil || port < 1 || port > 65535 {
		return netip.Addr{}, 0, fmt.Errorf("invalid port %q", portPart)
	}
	if hostPart == "" {
		return netip.Addr{}, port, nil
	}
	host, err := parseHost(hostPart)
	if err != nil {
		return netip.Addr{}, 0, err
	}
	return host, port, nil
}

// parseHost accepts an IP literal or "localhost".
func parseHost(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "localhost") {
		return netip.MustParseAddr(adb.DefaultHost), nil
	}
	return netip.ParseAddr(strings.Trim(s, "[]"))
}
