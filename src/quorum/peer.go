package quorum

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Peer is a directed edge in the peer graph: "I send consensus messages to
// Name" when Broadcast is true, or "I merely know Name is reachable" when it
// is false.
type Peer struct {
	Name      string
	Broadcast bool
}

// NewPeer returns a broadcast peer.
func NewPeer(name string) Peer {
	return Peer{Name: name, Broadcast: true}
}

// NewKnownPeer returns a peer that is known but does not receive consensus
// messages directly.
func NewKnownPeer(name string) Peer {
	return Peer{Name: name, Broadcast: false}
}

func (p Peer) String() string {
	return p.Name
}

// PeerNames returns the names of a list of peers.
func PeerNames(peers []Peer) []string {
	names := make([]string, len(peers))
	for i, p := range peers {
		names[i] = p.Name
	}
	return names
}

const (
	peerScheme     = "insecure-mcp"
	msgKeyParam    = "consensus-msg-key"
	broadcastParam = "broadcast-consensus-msgs"
)

// PeerAddr is the advertised address of a node's peer channel, carrying its
// consensus message signing key fingerprint and whether consensus messages
// should be broadcast to it.
type PeerAddr struct {
	Host      string
	Port      int
	PubKey    string
	Broadcast bool
}

// URI encodes the address in the form understood by the engine binary:
// insecure-mcp://host:port/?consensus-msg-key=...&broadcast-consensus-msgs=0|1
func (a PeerAddr) URI() string {
	broadcast := "0"
	if a.Broadcast {
		broadcast = "1"
	}
	return fmt.Sprintf("%s://%s:%d/?%s=%s&%s=%s",
		peerScheme, a.Host, a.Port, msgKeyParam, a.PubKey, broadcastParam, broadcast)
}

// ParsePeerAddr decodes a peer URI produced by URI.
func ParsePeerAddr(s string) (PeerAddr, error) {
	u, err := url.Parse(s)
	if err != nil {
		return PeerAddr{}, err
	}

	if u.Scheme != peerScheme {
		return PeerAddr{}, fmt.Errorf("unexpected peer URI scheme %q", u.Scheme)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return PeerAddr{}, fmt.Errorf("invalid peer URI port: %v", err)
	}

	query := u.Query()

	pubKey := query.Get(msgKeyParam)
	if pubKey == "" {
		return PeerAddr{}, fmt.Errorf("peer URI missing %s", msgKeyParam)
	}

	var broadcast bool
	switch query.Get(broadcastParam) {
	case "1":
		broadcast = true
	case "0":
		broadcast = false
	default:
		return PeerAddr{}, fmt.Errorf("peer URI missing %s", broadcastParam)
	}

	return PeerAddr{
		Host:      u.Hostname(),
		Port:      port,
		PubKey:    pubKey,
		Broadcast: broadcast,
	}, nil
}

// ValidatePeers checks that all peer names are distinct. The engine binary
// rejects duplicate broadcast peers with an obscure error, so this is caught
// before any process is spawned.
func ValidatePeers(peers []Peer) error {
	seen := map[string]bool{}
	for _, p := range peers {
		if seen[p.Name] {
			return fmt.Errorf("duplicate peer %q in [%s]", p.Name, strings.Join(PeerNames(peers), ", "))
		}
		seen[p.Name] = true
	}
	return nil
}
