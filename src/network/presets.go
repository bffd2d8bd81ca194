package network

import (
	"fmt"
	"strconv"

	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/quorum"
)

// Presets returns the names of the canned topologies.
func Presets() []string {
	return []string{"dense5", "a-b-c", "ring5", "ring5b"}
}

// Build constructs a network with one of the canned topologies.
func Build(conf *config.Config, provider keys.Provider, preset string) (*Network, error) {
	net, err := New(conf, provider)
	if err != nil {
		return nil, err
	}

	switch preset {
	case "dense5":
		err = net.buildDense5()
	case "a-b-c":
		err = net.buildABC()
	case "ring5":
		err = net.buildRing5(true)
	case "ring5b":
		err = net.buildRing5(false)
	default:
		return nil, fmt.Errorf("unknown network preset %q", preset)
	}

	if err != nil {
		return nil, err
	}
	return net, nil
}

// buildDense5 creates 5 fully interconnected nodes, each requiring
// agreement from 3 of its 4 peers.
func (net *Network) buildDense5() error {
	const numNodes = 5

	for i := 0; i < numNodes; i++ {
		var peers []quorum.Peer
		var others []string
		for j := 0; j < numNodes; j++ {
			if j == i {
				continue
			}
			name := strconv.Itoa(j)
			peers = append(peers, quorum.NewPeer(name))
			others = append(others, name)
		}

		if err := net.AddNode(strconv.Itoa(i), peers, quorum.NewQuorumSet(3, quorum.Names(others...))); err != nil {
			return err
		}
	}
	return nil
}

// buildABC creates 3 nodes in a line (a-b-c): every quorum set requires 2
// of the 2 other nodes, even though a and c only reach each other
// transitively through b.
func (net *Network) buildABC() error {
	steps := []struct {
		name   string
		peers  []quorum.Peer
		quorum *quorum.QuorumSet
	}{
		{"a", []quorum.Peer{quorum.NewPeer("b")}, quorum.NewQuorumSet(2, quorum.Names("b", "c"))},
		{"b", []quorum.Peer{quorum.NewPeer("a"), quorum.NewPeer("c")}, quorum.NewQuorumSet(2, quorum.Names("a", "c"))},
		{"c", []quorum.Peer{quorum.NewPeer("b")}, quorum.NewQuorumSet(2, quorum.Names("a", "b"))},
	}

	for _, s := range steps {
		if err := net.AddNode(s.name, s.peers, s.quorum); err != nil {
			return err
		}
	}
	return nil
}

// buildRing5 creates a ring of 5 nodes, each with the next node in its
// quorum set. With broadcastBack true (ring5) every node broadcasts to both
// ring neighbors; with it false (ring5b) it broadcasts only to the next node
// and merely knows about the previous one.
func (net *Network) buildRing5(broadcastBack bool) error {
	const numNodes = 5

	for i := 1; i <= numNodes; i++ {
		prev := strconv.Itoa((i+numNodes-2)%numNodes + 1)
		next := strconv.Itoa(i%numNodes + 1)

		prevPeer := quorum.NewPeer(prev)
		if !broadcastBack {
			prevPeer = quorum.NewKnownPeer(prev)
		}

		err := net.AddNode(
			strconv.Itoa(i),
			[]quorum.Peer{prevPeer, quorum.NewPeer(next)},
			quorum.NewQuorumSet(1, quorum.Names(next)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
