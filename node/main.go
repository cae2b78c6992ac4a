package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/lanmaster/lanmaster/protocol/identity"
	"github.com/lanmaster/lanmaster/shared/logger"
)

var version = "dev"

var (
	flagPort       int
	flagEnvFile    string
	flagHealthPort string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "lanmaster",
	Short:         "LAN master election node",
	Long:          "lanmaster elects a single master among the nodes of a broadcast domain and runs periodic control rounds from it.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the election and run until interrupted",
	RunE:  runNode,
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the identity this host would use in the election",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := identity.Local()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), self)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	runCmd.Flags().IntVarP(&flagPort, "port", "p", defaultNodePort, "UDP port shared by all nodes (overrides NODE_PORT)")
	runCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "file with environment variables to load (default ./.env if present)")
	runCmd.Flags().StringVar(&flagHealthPort, "health-port", defaultHealthPort, `status server port, "off" disables (overrides HEALTH_PORT)`)
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, error or quiet (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, identityCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(flagEnvFile); err != nil {
		return err
	}
	logger.InitLogger()
	if flagLogLevel != "" {
		logger.SetLogLevelFromString(flagLogLevel)
	}

	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, config)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.LogInfo("Node", "=== Node Starting ===")
	logger.LogInfo("Node", "Port: %d, broadcast: %s, health: %s", config.Port, config.BroadcastAddr, config.HealthPort)

	node, err := NewNode(config)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := startOrClose(node); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logger.LogInfo("Node", "=== Received %s, shutting down ===", sig)
		node.Stop()
	}()

	logger.LogInfo("Node", "=== Node Running ===")
	runErr := node.Run()
	closeErr := node.Close()
	logger.LogInfo("Node", "=== Node Stopped ===")

	return errors.Join(runErr, closeErr)
}

type lifecycle interface {
	Start() error
	Close() error
}

// startOrClose starts n and releases it if starting fails. Both errors are
// reported.
func startOrClose(n lifecycle) error {
	if err := n.Start(); err != nil {
		return errors.Join(fmt.Errorf("failed to start node: %w", err), n.Close())
	}
	return nil
}

// applyFlags overrides environment settings with explicitly set flags.
func applyFlags(cmd *cobra.Command, config *NodeConfig) {
	if cmd.Flags().Changed("port") {
		config.Port = flagPort
	}
	if cmd.Flags().Changed("health-port") {
		config.HealthPort = flagHealthPort
	}
}
