package quorum

import (
	"fmt"
)

// Member is one entry of a QuorumSet: either the name of a node or a nested
// QuorumSet. Names are resolved to live addresses only when the network
// starts, so quorum sets can reference nodes that are declared later.
type Member interface {
	isMember()
}

// NodeName references another node by name.
type NodeName string

func (NodeName) isMember() {}

// InnerSet nests a whole QuorumSet as a single member, supporting
// hierarchical configurations such as "2-of-3 where one member is itself a
// 2-of-2".
type InnerSet struct {
	Set *QuorumSet
}

func (InnerSet) isMember() {}

// QuorumSet names which peers, or nested groups of peers, must agree for a
// node to accept a statement, and how many of them.
type QuorumSet struct {
	Threshold int
	Members   []Member
}

// NewQuorumSet returns a QuorumSet with the given threshold and members.
func NewQuorumSet(threshold int, members []Member) *QuorumSet {
	return &QuorumSet{
		Threshold: threshold,
		Members:   members,
	}
}

// Names converts a list of node names to quorum set members.
func Names(names ...string) []Member {
	members := make([]Member, len(names))
	for i, n := range names {
		members[i] = NodeName(n)
	}
	return members
}

// Wire member types understood by the engine binary.
const (
	memberTypeNode     = "Node"
	memberTypeInnerSet = "InnerSet"
)

// ResolvedSet is the wire form of a QuorumSet, as consumed by the engine
// binary in its network.json file.
type ResolvedSet struct {
	Threshold int              `json:"threshold"`
	Members   []ResolvedMember `json:"members"`
}

// ResolvedMember is the wire form of a single member. Args is either a
// "host:port" string or a nested *ResolvedSet.
type ResolvedMember struct {
	Type string      `json:"type"`
	Args interface{} `json:"args"`
}

// Resolve substitutes node names with live addresses and returns the wire
// form of the quorum set. It errors if the threshold exceeds the number of
// members or if a name does not appear in peerPorts.
func (q *QuorumSet) Resolve(peerPorts map[string]int) (*ResolvedSet, error) {
	if q.Threshold > len(q.Members) {
		return nil, fmt.Errorf("quorum threshold %d exceeds %d members", q.Threshold, len(q.Members))
	}

	resolved := make([]ResolvedMember, len(q.Members))

	for i, member := range q.Members {
		switch m := member.(type) {
		case NodeName:
			port, ok := peerPorts[string(m)]
			if !ok {
				return nil, fmt.Errorf("unknown quorum set member %q", string(m))
			}
			resolved[i] = ResolvedMember{
				Type: memberTypeNode,
				Args: fmt.Sprintf("localhost:%d", port),
			}
		case InnerSet:
			inner, err := m.Set.Resolve(peerPorts)
			if err != nil {
				return nil, err
			}
			resolved[i] = ResolvedMember{
				Type: memberTypeInnerSet,
				Args: inner,
			}
		default:
			return nil, fmt.Errorf("unsupported quorum set member type %T", member)
		}
	}

	return &ResolvedSet{
		Threshold: q.Threshold,
		Members:   resolved,
	}, nil
}
