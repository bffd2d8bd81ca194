package node

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	"github.com/mobilecoinofficial/mcnet/src/quorum"
)

// networkConfig is the per-node topology document loaded by the engine
// binary via its --network flag.
type networkConfig struct {
	QuorumSet      *quorum.ResolvedSet `json:"quorum_set"`
	BroadcastPeers []string            `json:"broadcast_peers"`
	KnownPeers     []string            `json:"known_peers"`
	TxSourceURLs   []string            `json:"tx_source_urls"`
}

// writeNetworkConfig resolves the node's quorum set and peer list against
// the full node set and writes the engine's network.json file.
func (n *Node) writeNetworkConfig(all []*Node) error {
	nodesByName := make(map[string]*Node, len(all))
	peerPorts := make(map[string]int, len(all))
	for _, other := range all {
		nodesByName[other.Name] = other
		peerPorts[other.Name] = other.PeerPort
	}

	resolved, err := n.QuorumSet.Resolve(peerPorts)
	if err != nil {
		return fmt.Errorf("node %s: %v", n.Name, err)
	}

	peerNames := make(map[string]bool, len(n.Peers))
	broadcastPeers := make([]string, 0, len(n.Peers))
	txSourceURLs := []string{}

	for _, peer := range n.Peers {
		other, ok := nodesByName[peer.Name]
		if !ok {
			return fmt.Errorf("node %s: unknown peer %q", n.Name, peer.Name)
		}

		uri, err := other.PeerURI(peer.Broadcast)
		if err != nil {
			return err
		}
		broadcastPeers = append(broadcastPeers, uri)
		peerNames[peer.Name] = true

		// Ledger sources are limited to direct broadcast peers.
		if peer.Broadcast {
			txSourceURLs = append(txSourceURLs, "file://"+other.LedgerDistributionDir())
		}
	}

	// Any other node in the network may still appear in our quorum set.
	knownPeers := []string{}
	for _, other := range all {
		if other.Name == n.Name || peerNames[other.Name] {
			continue
		}
		uri, err := other.PeerURI(true)
		if err != nil {
			return err
		}
		knownPeers = append(knownPeers, uri)
	}

	doc := networkConfig{
		QuorumSet:      resolved,
		BroadcastPeers: broadcastPeers,
		KnownPeers:     knownPeers,
		TxSourceURLs:   txSourceURLs,
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(n.NetworkConfigFile(), buf, 0644)
}
