package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lanmaster/lanmaster/node/election"
	"github.com/lanmaster/lanmaster/shared/network"
)

const (
	defaultNodePort       = 5000
	defaultHealthPort     = "8888"
	defaultEventsExchange = "lanmaster.events"
	healthDisabled        = "off"
)

type NodeConfig struct {
	Port           int
	BroadcastAddr  string
	HealthPort     string // healthDisabled turns the status server off
	Election       election.Config
	EventsURL      string // empty disables event publishing
	EventsExchange string
	SensorSeed     int64
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. With an empty path an optional ./.env is tried.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func LoadConfig() (*NodeConfig, error) {
	defaults := election.DefaultConfig()

	port, err := parseInt(os.Getenv("NODE_PORT"), defaultNodePort)
	if err != nil {
		return nil, fmt.Errorf("invalid NODE_PORT: %w", err)
	}

	broadcastAddr := os.Getenv("BROADCAST_ADDR")
	if broadcastAddr == "" {
		broadcastAddr = network.DefaultBroadcastAddr
	}

	healthPort := os.Getenv("HEALTH_PORT")
	if healthPort == "" {
		healthPort = defaultHealthPort
	}

	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"WHO_IS_MASTER_TIMEOUT", &defaults.WhoIsMasterTimeout, defaults.WhoIsMasterTimeout},
		{"WAIT_FOR_MASTER_TIMEOUT", &defaults.WaitForMasterTimeout, defaults.WaitForMasterTimeout},
		{"MONITORING_MASTER_TIMEOUT", &defaults.MonitoringMasterTimeout, defaults.MonitoringMasterTimeout},
		{"HEARTBEAT_INTERVAL", &defaults.HeartbeatInterval, defaults.HeartbeatInterval},
		{"CONTROL_REQUEST_INTERVAL", &defaults.ControlRequestInterval, defaults.ControlRequestInterval},
		{"CONTROL_WAIT_RESPONSE_TIMEOUT", &defaults.ControlWaitResponseTimeout, defaults.ControlWaitResponseTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(os.Getenv(d.key), d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = v
	}

	bufferSize, err := parseInt(os.Getenv("RESPONSE_BUFFER_SIZE"), defaults.ResponseBufferSize)
	if err != nil {
		return nil, fmt.Errorf("invalid RESPONSE_BUFFER_SIZE: %w", err)
	}
	defaults.ResponseBufferSize = bufferSize

	exchangeName := os.Getenv("EVENTS_EXCHANGE")
	if exchangeName == "" {
		exchangeName = defaultEventsExchange
	}

	var seed int64
	if s := os.Getenv("SENSOR_SEED"); s != "" {
		seed, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SENSOR_SEED: %w", err)
		}
	}

	return &NodeConfig{
		Port:           port,
		BroadcastAddr:  broadcastAddr,
		HealthPort:     healthPort,
		Election:       defaults,
		EventsURL:      os.Getenv("EVENTS_AMQP_URL"),
		EventsExchange: exchangeName,
		SensorSeed:     seed,
	}, nil
}

func (c *NodeConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	e := c.Election
	for name, d := range map[string]time.Duration{
		"WHO_IS_MASTER_TIMEOUT":         e.WhoIsMasterTimeout,
		"WAIT_FOR_MASTER_TIMEOUT":       e.WaitForMasterTimeout,
		"MONITORING_MASTER_TIMEOUT":     e.MonitoringMasterTimeout,
		"HEARTBEAT_INTERVAL":            e.HeartbeatInterval,
		"CONTROL_REQUEST_INTERVAL":      e.ControlRequestInterval,
		"CONTROL_WAIT_RESPONSE_TIMEOUT": e.ControlWaitResponseTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if e.MonitoringMasterTimeout <= e.HeartbeatInterval {
		return fmt.Errorf("MONITORING_MASTER_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)",
			e.MonitoringMasterTimeout, e.HeartbeatInterval)
	}
	if e.ControlWaitResponseTimeout >= e.ControlRequestInterval {
		return fmt.Errorf("CONTROL_WAIT_RESPONSE_TIMEOUT (%s) must be shorter than CONTROL_REQUEST_INTERVAL (%s)",
			e.ControlWaitResponseTimeout, e.ControlRequestInterval)
	}
	if e.ResponseBufferSize <= 0 {
		return fmt.Errorf("RESPONSE_BUFFER_SIZE must be positive, got %d", e.ResponseBufferSize)
	}
	return nil
}

func (c *NodeConfig) HealthEnabled() bool {
	return c.HealthPort != healthDisabled
}

func parseDuration(durationStr string, defaultDuration time.Duration) (time.Duration, error) {
	if durationStr == "" {
		return defaultDuration, nil
	}

	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, err
	}

	return duration, nil
}

func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
