package network

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/quorum"
)

func newTestConfig(t *testing.T) *config.Config {
	dir, err := ioutil.TempDir("", "mcnet")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewDefaultConfig()
	conf.WorkDir = filepath.Join(dir, "work")
	conf.BinDir = filepath.Join(dir, "bin")
	conf.LedgerBase = filepath.Join(dir, "ledger-base")
	conf.LogLevel = "error"
	conf.ControlPort = 0
	conf.PollInterval = 10 * time.Millisecond
	conf.StartupTimeout = 5 * time.Second

	// Stub binary names are scoped to this test run so the best-effort
	// stale-process kill cannot touch anything else.
	suffix := strconv.Itoa(os.Getpid())
	conf.ConsensusBinary = "stub-consensus-" + suffix
	conf.LedgerDistributionBinary = "stub-distribution-" + suffix
	conf.AdminGatewayBinary = "stub-gateway-" + suffix

	if err := os.MkdirAll(conf.BinDir, 0755); err != nil {
		t.Fatalf("err: %v", err)
	}
	for _, bin := range []string{
		conf.ConsensusBinary,
		conf.LedgerDistributionBinary,
		conf.AdminGatewayBinary,
	} {
		script := "#!/bin/sh\nsleep 60\n"
		if err := ioutil.WriteFile(conf.BinPath(bin), []byte(script), 0755); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	return conf
}

// touchLedgerDBs pre-creates every node's readiness artifact so the stub
// engines look initialized immediately.
func touchLedgerDBs(t *testing.T, net *Network) {
	for _, n := range net.Nodes() {
		if err := os.MkdirAll(n.LedgerDir(), 0755); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := ioutil.WriteFile(filepath.Join(n.LedgerDir(), "data.mdb"), nil, 0644); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestPresetABC(t *testing.T) {
	conf := newTestConfig(t)

	net, err := Build(conf, keys.NewInmemProvider(), "a-b-c")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(net.Nodes()) != 3 {
		t.Fatalf("nodes: %d", len(net.Nodes()))
	}

	// b broadcasts to both neighbours.
	b := net.GetNode("b")
	if len(b.Peers) != 2 {
		t.Fatalf("b peers: %v", b.Peers)
	}
	for _, p := range b.Peers {
		if !p.Broadcast {
			t.Fatalf("b peer %s is not broadcast", p.Name)
		}
	}

	// a only peers with b, but its quorum set still names b and c.
	a := net.GetNode("a")
	if len(a.Peers) != 1 || a.Peers[0].Name != "b" {
		t.Fatalf("a peers: %v", a.Peers)
	}

	members := map[string]bool{}
	for _, m := range a.QuorumSet.Members {
		name, ok := m.(quorum.NodeName)
		if !ok {
			t.Fatalf("member type: %T", m)
		}
		members[string(name)] = true
	}
	if a.QuorumSet.Threshold != 2 || !members["b"] || !members["c"] {
		t.Fatalf("a quorum set: %+v", a.QuorumSet)
	}
}

func TestPresetDense5Ports(t *testing.T) {
	conf := newTestConfig(t)

	net, err := Build(conf, keys.NewInmemProvider(), "dense5")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(net.Nodes()) != 5 {
		t.Fatalf("nodes: %d", len(net.Nodes()))
	}

	seen := map[string]bool{}
	for i, n := range net.Nodes() {
		// Deterministic function of the index.
		if n.ClientPort != conf.BaseClientPort+i || n.PeerPort != conf.BasePeerPort+i {
			t.Fatalf("node %s ports: %d %d", n.Name, n.ClientPort, n.PeerPort)
		}

		tuple := fmt.Sprintf("%d/%d/%d/%d",
			n.ClientPort, n.PeerPort, n.AdminPort, n.AdminHTTPGatewayPort)
		if seen[tuple] {
			t.Fatalf("duplicate port tuple %s", tuple)
		}
		seen[tuple] = true

		if len(n.Peers) != 4 || n.QuorumSet.Threshold != 3 {
			t.Fatalf("node %s topology: %v %+v", n.Name, n.Peers, n.QuorumSet)
		}
	}
}

func TestPresetRing5Broadcast(t *testing.T) {
	conf := newTestConfig(t)

	ring5, err := Build(conf, keys.NewInmemProvider(), "ring5")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	for _, n := range ring5.Nodes() {
		for _, p := range n.Peers {
			if !p.Broadcast {
				t.Fatalf("ring5 node %s peer %s is not broadcast", n.Name, p.Name)
			}
		}
	}

	ring5b, err := Build(conf, keys.NewInmemProvider(), "ring5b")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// ring5b: node 1 knows 5 without broadcasting to it, broadcasts to 2.
	one := ring5b.GetNode("1")
	if len(one.Peers) != 2 {
		t.Fatalf("peers: %v", one.Peers)
	}
	if one.Peers[0].Name != "5" || one.Peers[0].Broadcast {
		t.Fatalf("previous peer: %+v", one.Peers[0])
	}
	if one.Peers[1].Name != "2" || !one.Peers[1].Broadcast {
		t.Fatalf("next peer: %+v", one.Peers[1])
	}
}

func TestBuildUnknownPreset(t *testing.T) {
	conf := newTestConfig(t)

	if _, err := Build(conf, keys.NewInmemProvider(), "mesh42"); err == nil {
		t.Fatal("unknown preset should fail")
	}
}

func TestAddNodeDuplicateName(t *testing.T) {
	conf := newTestConfig(t)

	net, err := New(conf, keys.NewInmemProvider())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	qs := quorum.NewQuorumSet(1, quorum.Names("a"))
	if err := net.AddNode("a", nil, qs); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := net.AddNode("a", nil, qs); err == nil {
		t.Fatal("duplicate node name should fail")
	}

	if net.GetNode("ghost") != nil {
		t.Fatal("GetNode should return nil for unknown names")
	}
}

func TestNetworkStartWait(t *testing.T) {
	conf := newTestConfig(t)

	net, err := Build(conf, keys.NewInmemProvider(), "a-b-c")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer net.Stop()

	touchLedgerDBs(t, net)

	if err := net.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}

	for _, n := range net.Nodes() {
		if !strings.HasPrefix(n.Status(), "running, pid=") {
			t.Fatalf("node %s status: %s", n.Name, n.Status())
		}
	}

	// With everything alive, Wait only returns on cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if !net.Wait(ctx) {
		t.Fatal("Wait should report a clean shutdown")
	}

	// Kill one engine out from under the network; Wait notices.
	var pid int
	if _, err := fmt.Sscanf(net.GetNode("b").Status(), "running, pid=%d", &pid); err != nil {
		t.Fatalf("err: %v", err)
	}
	syscall.Kill(pid, syscall.SIGKILL)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if net.Wait(ctx2) {
		t.Fatal("Wait should report the dead process")
	}
}

func TestNetworkStartIsRepeatable(t *testing.T) {
	conf := newTestConfig(t)

	net, err := Build(conf, keys.NewInmemProvider(), "a-b-c")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer net.Stop()

	touchLedgerDBs(t, net)

	if err := net.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := net.Start(); err != nil {
		t.Fatalf("restart err: %v", err)
	}

	for _, n := range net.Nodes() {
		if !strings.HasPrefix(n.Status(), "running, pid=") {
			t.Fatalf("node %s status: %s", n.Name, n.Status())
		}
	}
}
