// Package network implements the top-level network manager: it owns the
// full node set, provisions the shared minting keys, starts and stops the
// whole network, and watches it for unexpected process deaths.
package network

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/node"
	"github.com/mobilecoinofficial/mcnet/src/quorum"
	"github.com/mobilecoinofficial/mcnet/src/service"
	"github.com/sirupsen/logrus"
)

// numGovernors is the number of independent governor keypairs generated per
// run; token ids 1..numGovernors are each governed by one of them.
const numGovernors = 2

// Network owns the node set and the control server for one run. The working
// directory is wiped and recreated when the network is constructed.
type Network struct {
	conf     *config.Config
	provider keys.Provider
	logger   *logrus.Entry
	nodes    []*node.Node
	control  *service.Server
}

// New creates an empty network and resets the working directory.
func New(conf *config.Config, provider keys.Provider) (*Network, error) {
	if err := os.RemoveAll(conf.WorkDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.WorkDir, 0755); err != nil {
		return nil, err
	}

	return &Network{
		conf:     conf,
		provider: provider,
		logger:   conf.Logger(),
	}, nil
}

// AddNode creates a node with the next sequential index. The node's signing
// key is generated immediately.
func (net *Network) AddNode(name string, peers []quorum.Peer, quorumSet *quorum.QuorumSet) error {
	if net.GetNode(name) != nil {
		return fmt.Errorf("duplicate node name %q", name)
	}

	n, err := node.New(net.conf, net.provider, net.logger, name, len(net.nodes), peers, quorumSet)
	if err != nil {
		return err
	}

	net.nodes = append(net.nodes, n)
	return nil
}

// Nodes returns all nodes in declaration order.
func (net *Network) Nodes() []*node.Node {
	return net.nodes
}

// GetNode returns the node with the given name, or nil.
func (net *Network) GetNode(name string) *node.Node {
	for _, n := range net.nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// RestartNode stops and starts a node. It implements service.Orchestrator.
func (net *Network) RestartNode(n *node.Node) error {
	n.Stop()
	return n.Start(net.nodes)
}

// Start brings the whole network up: it tears down any stale state, kills
// leftover processes from previous runs, regenerates the minting keys,
// starts every node sequentially, and finally starts the control server. It
// may be called repeatedly.
func (net *Network) Start() error {
	net.Stop()

	net.logger.Info("Generating minting keys")
	if err := net.generateMintingKeys(); err != nil {
		return err
	}

	net.logger.Info("Starting nodes")
	for _, n := range net.nodes {
		if err := n.Start(net.nodes); err != nil {
			return err
		}
	}

	net.logger.Info("Starting network control server")
	control, err := service.NewServer(
		fmt.Sprintf("0.0.0.0:%d", net.conf.ControlPort), net, net.logger)
	if err != nil {
		return err
	}
	net.control = control

	return nil
}

// generateMintingKeys recreates the minting keys directory with two fresh
// governor keypairs and the deterministic minting trust root.
func (net *Network) generateMintingKeys() error {
	dir := net.conf.MintingKeysDir()

	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for i := 1; i <= numGovernors; i++ {
		priv := filepath.Join(dir, keys.GovernorKeyFile(i))
		if err := net.provider.GenerateKey(priv); err != nil {
			return err
		}
		if err := net.provider.WritePublicKey(priv, filepath.Join(dir, keys.GovernorPubFile(i))); err != nil {
			return err
		}
	}

	// The fixed seed matches the trust root baked into the engine's enclave
	// build, keeping test runs reproducible.
	return net.provider.GenerateSeededKey(
		keys.TrustRootSeed, filepath.Join(dir, keys.TrustRootFile))
}

// Wait blocks until a tracked process dies unexpectedly, returning false,
// or until the context is cancelled, returning true.
func (net *Network) Wait(ctx context.Context) bool {
	ticker := time.NewTicker(net.conf.PollInterval)
	defer ticker.Stop()

	for {
		for _, n := range net.nodes {
			if component, code, dead := n.DeadProcess(); dead {
				net.logger.WithFields(logrus.Fields{
					"node":      n.Name,
					"component": component,
					"exit_code": code,
				}).Error("Process died")
				return false
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return true
		}
	}
}

// Stop shuts down the control server, stops every node, and reaps any
// leftover processes by name. Safe to call at any time.
func (net *Network) Stop() {
	if net.control != nil {
		net.control.Shutdown()
		net.control = nil
	}

	for _, n := range net.nodes {
		n.Stop()
	}

	net.killStale()
}

// killStale kills any processes matching the known binary names, best
// effort. A failure here only means there was nothing to kill.
func (net *Network) killStale() {
	net.logger.Info("Killing any existing processes")

	for _, bin := range []string{
		net.conf.ConsensusBinary,
		net.conf.LedgerDistributionBinary,
		net.conf.AdminGatewayBinary,
	} {
		if err := exec.Command("pkill", "-9", bin).Run(); err != nil {
			net.logger.WithField("binary", bin).Debugf("pkill: %v", err)
		}
	}
}
