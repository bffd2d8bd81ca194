// Package node implements the per-node process supervisor of the local
// network: it owns a node's identity, ports, key material, generated config
// files, and up to three OS processes (the consensus engine and its two
// sidecars).
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/quorum"
	"github.com/sirupsen/logrus"
)

// ledgerDBFile is the file whose appearance inside the ledger directory
// signals that the engine finished initializing.
const ledgerDBFile = "data.mdb"

// Node is a single member of the local network. A Node exclusively owns its
// process handles and its directories inside the working dir.
type Node struct {
	Name                 string
	Index                int
	ClientPort           int
	PeerPort             int
	AdminPort            int
	AdminHTTPGatewayPort int
	Peers                []quorum.Peer
	QuorumSet            *quorum.QuorumSet
	BlockVersion         int
	MinimumFee           uint64

	conf     *config.Config
	provider keys.Provider
	logger   *logrus.Entry

	// lifecycle serializes Start against Stop, so a control server command
	// cannot interleave with an in-flight start. mu guards the process
	// handles, which are also read by the network's wait loop.
	lifecycle sync.Mutex
	mu        sync.Mutex
	state     nodeState

	consensus          *process
	ledgerDistribution *process
	adminGateway       *process
}

// New creates a Node with ports assigned deterministically from its index,
// and generates its consensus message signing key on disk. The working
// directory must already exist.
func New(conf *config.Config, provider keys.Provider, logger *logrus.Entry, name string, index int, peers []quorum.Peer, quorumSet *quorum.QuorumSet) (*Node, error) {
	if quorumSet == nil {
		return nil, fmt.Errorf("node %s has no quorum set", name)
	}
	if err := quorum.ValidatePeers(peers); err != nil {
		return nil, err
	}

	n := &Node{
		Name:                 name,
		Index:                index,
		ClientPort:           conf.BaseClientPort + index,
		PeerPort:             conf.BasePeerPort + index,
		AdminPort:            conf.BaseAdminPort + index,
		AdminHTTPGatewayPort: conf.BaseAdminHTTPGatewayPort + index,
		Peers:                peers,
		QuorumSet:            quorumSet,
		BlockVersion:         conf.BlockVersion,
		MinimumFee:           conf.MinimumFee,
		conf:                 conf,
		provider:             provider,
		logger:               logger.WithField("node", name),
	}

	if err := provider.GenerateKey(n.SigningKeyFile()); err != nil {
		return nil, fmt.Errorf("generating signing key for node %s: %v", name, err)
	}

	return n, nil
}

func (n *Node) String() string {
	return n.Name
}

// LedgerDir returns the directory holding the node's ledger database.
func (n *Node) LedgerDir() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node-ledger-%d", n.Index))
}

// LedgerDistributionDir returns the directory the ledger distribution
// sidecar publishes finalized blocks into.
func (n *Node) LedgerDistributionDir() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node-ledger-distribution-%d", n.Index))
}

// SigningKeyFile returns the path of the node's consensus message signing
// key.
func (n *Node) SigningKeyFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node-scp-%d.pem", n.Index))
}

// TokensConfigFile returns the path of the node's signed token configuration.
func (n *Node) TokensConfigFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node-tokens-%d.json", n.Index))
}

// NetworkConfigFile returns the path of the node's resolved topology.
func (n *Node) NetworkConfigFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node%d-network.json", n.Index))
}

func (n *Node) scpDebugDumpDir() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("scp-debug-dump-%d", n.Index))
}

func (n *Node) sealedSigningKeyFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("consensus-sealed-block-signing-key-%d", n.Index))
}

func (n *Node) distributionStateFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("ledger-distribution-state-%d", n.Index))
}

func (n *Node) logFile() string {
	return filepath.Join(n.conf.WorkDir, fmt.Sprintf("node-%d.log", n.Index))
}

// PeerURI returns the node's advertised peer address, embedding its public
// key fingerprint and the given broadcast flag.
func (n *Node) PeerURI(broadcast bool) (string, error) {
	pubKey, err := n.provider.PublicKeyBase64URL(n.SigningKeyFile())
	if err != nil {
		return "", err
	}

	addr := quorum.PeerAddr{
		Host:      "localhost",
		Port:      n.PeerPort,
		PubKey:    pubKey,
		Broadcast: broadcast,
	}
	return addr.URI(), nil
}

// State returns the node's lifecycle state.
func (n *Node) State() State {
	return n.state.get()
}

// Status returns the node's status line: "stopped", "exited", or
// "running, pid=<n>".
func (n *Node) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.consensus == nil {
		return "stopped"
	}
	if n.consensus.Exited() {
		return "exited"
	}
	return fmt.Sprintf("running, pid=%d", n.consensus.Pid())
}

// Start regenerates the node's config files and spawns the engine and its
// sidecars. The all slice must contain every node of the network, including
// this one; it is used to resolve the quorum set and peer URIs. Start
// refuses to run while an engine process is already tracked. If the engine
// exits before its ledger appears, the start is aborted and Start returns
// nil; the exited handle stays tracked and the failure surfaces through
// Status and DeadProcess.
func (n *Node) Start(all []*Node) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	n.mu.Lock()
	if n.consensus != nil {
		n.mu.Unlock()
		return fmt.Errorf("node %s: already tracking a consensus process, stop it first", n.Name)
	}
	// Sidecars of a previous run do not survive a restart.
	if n.ledgerDistribution != nil {
		n.ledgerDistribution.Terminate()
		n.ledgerDistribution = nil
	}
	if n.adminGateway != nil {
		n.adminGateway.Terminate()
		n.adminGateway = nil
	}
	n.mu.Unlock()

	// Config always reflects the current peer set.
	if err := n.writeNetworkConfig(all); err != nil {
		return err
	}
	if err := n.writeTokensConfig(); err != nil {
		return err
	}

	if err := os.RemoveAll(n.scpDebugDumpDir()); err != nil {
		return err
	}

	signerKey, err := keys.PrivateKeyBody(n.SigningKeyFile())
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"client_port": n.ClientPort,
		"peer_port":   n.PeerPort,
		"admin_port":  n.AdminPort,
		"peers":       quorum.PeerNames(n.Peers),
	}).Info("Starting node")

	engine, err := startProcess(n.logFile(), n.conf.ChildEnv(), n.conf.BinPath(n.conf.ConsensusBinary),
		"--client-responder-id", fmt.Sprintf("localhost:%d", n.ClientPort),
		"--peer-responder-id", fmt.Sprintf("localhost:%d", n.PeerPort),
		"--msg-signer-key", signerKey,
		"--network", n.NetworkConfigFile(),
		"--ias-api-key="+n.conf.IASAPIKey,
		"--ias-spid="+n.conf.IASSPID,
		"--origin-block-path", n.conf.LedgerBase,
		"--block-version", strconv.Itoa(n.BlockVersion),
		"--ledger-path", n.LedgerDir(),
		"--admin-listen-uri", fmt.Sprintf("insecure-mca://0.0.0.0:%d/", n.AdminPort),
		"--client-listen-uri", fmt.Sprintf("insecure-mc://0.0.0.0:%d/", n.ClientPort),
		"--peer-listen-uri", fmt.Sprintf("insecure-mcp://0.0.0.0:%d/", n.PeerPort),
		"--scp-debug-dump", n.scpDebugDumpDir(),
		"--sealed-block-signing-key", n.sealedSigningKeyFile(),
		"--tokens="+n.TokensConfigFile(),
	)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.consensus = engine
	n.mu.Unlock()
	n.state.set(Starting)

	if err := n.waitForLedger(engine); err != nil {
		return err
	}

	if engine.Exited() {
		// The engine died before the ledger appeared; the sidecars are not
		// started.
		return nil
	}

	// The sidecars need the ledger directory, which only exists now.
	dist, err := startProcess(n.logFile(), n.conf.ChildEnv(), n.conf.BinPath(n.conf.LedgerDistributionBinary),
		"--ledger-path", n.LedgerDir(),
		"--dest", "file://"+n.LedgerDistributionDir(),
		"--state-file", n.distributionStateFile(),
	)
	if err != nil {
		n.stop()
		return err
	}

	gateway, err := startProcess(n.logFile(), n.conf.ChildEnv(), n.conf.BinPath(n.conf.AdminGatewayBinary),
		"--listen-host", "0.0.0.0",
		"--listen-port", strconv.Itoa(n.AdminHTTPGatewayPort),
		"--admin-uri", fmt.Sprintf("insecure-mca://127.0.0.1:%d/", n.AdminPort),
	)
	if err != nil {
		dist.Terminate()
		n.stop()
		return err
	}

	n.mu.Lock()
	n.ledgerDistribution = dist
	n.adminGateway = gateway
	n.mu.Unlock()
	n.state.set(Running)

	return nil
}

// waitForLedger polls until the engine's ledger database appears. It returns
// nil with the node left in the exited state if the engine exits first, and
// an error if the configured startup timeout elapses.
func (n *Node) waitForLedger(engine *process) error {
	ledgerDB := filepath.Join(n.LedgerDir(), ledgerDBFile)

	var deadline <-chan time.Time
	if n.conf.StartupTimeout > 0 {
		timer := time.NewTimer(n.conf.StartupTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(n.conf.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(ledgerDB); err == nil {
			return nil
		}

		if engine.Exited() {
			// The handle stays tracked: Status reports "exited" and the
			// network's wait loop sees the dead process.
			n.logger.Warn("Consensus process exited before the ledger appeared")
			n.state.set(Exited)
			return nil
		}

		n.logger.Debugf("Waiting for %s", ledgerDB)

		select {
		case <-ticker.C:
		case <-deadline:
			n.stop()
			return fmt.Errorf("node %s: ledger db did not appear within %v", n.Name, n.conf.StartupTimeout)
		}
	}
}

// Stop terminates the node's processes and clears their handles. It is safe
// to call regardless of prior state.
func (n *Node) Stop() {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	n.stop()
}

func (n *Node) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range []*process{n.consensus, n.ledgerDistribution, n.adminGateway} {
		if p != nil {
			p.Terminate()
		}
	}
	n.consensus = nil
	n.ledgerDistribution = nil
	n.adminGateway = nil
	n.state.set(Stopped)

	n.logger.Infof("Stopped node %s", n.Name)
}

// DeadProcess reports the first tracked process that terminated
// unexpectedly, naming the component and its exit code.
func (n *Node) DeadProcess() (string, int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	checks := []struct {
		component string
		proc      *process
	}{
		{"consensus service", n.consensus},
		{"admin http gateway", n.adminGateway},
		{"ledger distribution", n.ledgerDistribution},
	}

	for _, c := range checks {
		if c.proc != nil && c.proc.Exited() {
			return c.component, c.proc.ExitCode(), true
		}
	}
	return "", 0, false
}
