package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanmaster/lanmaster/node/election"
)

var configKeys = []string{
	"NODE_PORT", "BROADCAST_ADDR", "HEALTH_PORT",
	"WHO_IS_MASTER_TIMEOUT", "WAIT_FOR_MASTER_TIMEOUT", "MONITORING_MASTER_TIMEOUT",
	"HEARTBEAT_INTERVAL", "CONTROL_REQUEST_INTERVAL", "CONTROL_WAIT_RESPONSE_TIMEOUT",
	"RESPONSE_BUFFER_SIZE", "EVENTS_AMQP_URL", "EVENTS_EXCHANGE", "SENSOR_SEED",
}

// clearEnv blanks every config key for the duration of the test.
func clearEnv(t *testing.T) {
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5000, config.Port)
	assert.Equal(t, "255.255.255.255", config.BroadcastAddr)
	assert.Equal(t, "8888", config.HealthPort)
	assert.True(t, config.HealthEnabled())
	assert.Equal(t, election.DefaultConfig(), config.Election)
	assert.Empty(t, config.EventsURL)
	assert.Equal(t, "lanmaster.events", config.EventsExchange)
	assert.Zero(t, config.SensorSeed)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_PORT", "6000")
	t.Setenv("BROADCAST_ADDR", "192.168.1.255")
	t.Setenv("HEALTH_PORT", "off")
	t.Setenv("WHO_IS_MASTER_TIMEOUT", "500ms")
	t.Setenv("MONITORING_MASTER_TIMEOUT", "4s")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("RESPONSE_BUFFER_SIZE", "4")
	t.Setenv("EVENTS_AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("SENSOR_SEED", "42")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6000, config.Port)
	assert.Equal(t, "192.168.1.255", config.BroadcastAddr)
	assert.False(t, config.HealthEnabled())
	assert.Equal(t, 500*time.Millisecond, config.Election.WhoIsMasterTimeout)
	assert.Equal(t, 4*time.Second, config.Election.MonitoringMasterTimeout)
	assert.Equal(t, 2*time.Second, config.Election.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, config.Election.WaitForMasterTimeout)
	assert.Equal(t, 4, config.Election.ResponseBufferSize)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", config.EventsURL)
	assert.Equal(t, int64(42), config.SensorSeed)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"NODE_PORT", "five"},
		{"HEARTBEAT_INTERVAL", "soon"},
		{"CONTROL_WAIT_RESPONSE_TIMEOUT", "1"},
		{"RESPONSE_BUFFER_SIZE", "1.5"},
		{"SENSOR_SEED", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *NodeConfig {
		return &NodeConfig{Port: 5000, Election: election.DefaultConfig()}
	}

	tests := []struct {
		name   string
		mutate func(*NodeConfig)
		errMsg string
	}{
		{"port out of range", func(c *NodeConfig) { c.Port = 70000 }, "out of range"},
		{"zero timeout", func(c *NodeConfig) { c.Election.WaitForMasterTimeout = 0 }, "WAIT_FOR_MASTER_TIMEOUT"},
		{
			"monitoring not above heartbeat",
			func(c *NodeConfig) { c.Election.MonitoringMasterTimeout = c.Election.HeartbeatInterval },
			"must exceed HEARTBEAT_INTERVAL",
		},
		{
			"wait not below request interval",
			func(c *NodeConfig) { c.Election.ControlWaitResponseTimeout = c.Election.ControlRequestInterval },
			"must be shorter than CONTROL_REQUEST_INTERVAL",
		},
		{"empty response buffer", func(c *NodeConfig) { c.Election.ResponseBufferSize = 0 }, "RESPONSE_BUFFER_SIZE"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.errMsg)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("NODE_PORT")
	os.Unsetenv("HEARTBEAT_INTERVAL")

	path := filepath.Join(t.TempDir(), "node.env")
	require.NoError(t, os.WriteFile(path, []byte("NODE_PORT=7000\nHEARTBEAT_INTERVAL=250ms\n"), 0o600))

	require.NoError(t, loadEnvFile(path))
	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, 250*time.Millisecond, config.Election.HeartbeatInterval)

	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_PORT", "6000")
	config, err := LoadConfig()
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.Flags().IntVarP(&flagPort, "port", "p", defaultNodePort, "")
	cmd.Flags().StringVar(&flagHealthPort, "health-port", defaultHealthPort, "")

	applyFlags(cmd, config)
	assert.Equal(t, 6000, config.Port, "unset flag keeps env value")

	require.NoError(t, cmd.Flags().Parse([]string{"--port", "6100", "--health-port", "off"}))
	applyFlags(cmd, config)
	assert.Equal(t, 6100, config.Port)
	assert.False(t, config.HealthEnabled())
}
