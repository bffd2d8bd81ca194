package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/network"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var preset string

// NewRunCmd returns the command that builds and runs a local network
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a local consensus network",
		PreRunE: loadConfig,
		RunE:    runNetwork,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNetwork(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	provider := keys.NewOpensslProvider(
		_config.BinPath(_config.SeededKeygenBinary),
		_config.BinPath(_config.MintClientBinary),
		logger,
	)

	net, err := network.Build(_config, provider, preset)
	if err != nil {
		return err
	}

	if err := net.Start(); err != nil {
		net.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("Received an interrupt, stopping the network")
		cancel()
	}()

	clean := net.Wait(ctx)
	net.Stop()

	if !clean {
		return fmt.Errorf("a network process died unexpectedly")
	}
	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "dense5",
		fmt.Sprintf("Network topology: %s", strings.Join(network.Presets(), ", ")))

	cmd.Flags().String("workdir", _config.WorkDir, "Top-level directory for per-run state")
	cmd.Flags().String("bindir", _config.BinDir, "Directory containing the external binaries")
	cmd.Flags().String("ledger-base", _config.LedgerBase, "Origin block path")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	cmd.Flags().Int("base-client-port", _config.BaseClientPort, "First client port")
	cmd.Flags().Int("base-peer-port", _config.BasePeerPort, "First peer port")
	cmd.Flags().Int("base-admin-port", _config.BaseAdminPort, "First admin port")
	cmd.Flags().Int("base-admin-http-gateway-port", _config.BaseAdminHTTPGatewayPort, "First admin HTTP gateway port")
	cmd.Flags().Int("control-port", _config.ControlPort, "TCP port of the network control server")

	cmd.Flags().String("ias-api-key", _config.IASAPIKey, "IAS API key forwarded to the engine")
	cmd.Flags().String("ias-spid", _config.IASSPID, "IAS SPID forwarded to the engine")

	cmd.Flags().Int("block-version", _config.BlockVersion, "Block version shared by all nodes")
	cmd.Flags().Uint64("minimum-fee", _config.MinimumFee, "Minimum fee of the default token")

	cmd.Flags().String("mc-log", _config.MCLogFilter, "MC_LOG filter exported to spawned binaries")
	cmd.Flags().String("fs-log", _config.FSLogFilter, "FS_LOG filter exported to spawned binaries")

	cmd.Flags().Duration("poll-interval", _config.PollInterval, "Readiness and liveness poll cadence")
	cmd.Flags().Duration("startup-timeout", _config.StartupTimeout, "Bound on a node's readiness wait (0 waits forever)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"Preset":         preset,
		"WorkDir":        _config.WorkDir,
		"BinDir":         _config.BinDir,
		"LedgerBase":     _config.LedgerBase,
		"ControlPort":    _config.ControlPort,
		"BlockVersion":   _config.BlockVersion,
		"PollInterval":   _config.PollInterval,
		"StartupTimeout": _config.StartupTimeout,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all
	// other persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for a mcnet.toml config file (.json, .yaml also work)
	viper.SetConfigName("mcnet") // name of config file (without extension)
	viper.AddConfigPath(".")     // search the current directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debug("No config file found")
	} else {
		return err
	}

	// second unmarshal to read from the config file
	return viper.Unmarshal(_config)
}
