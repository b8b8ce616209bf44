package raftnode

import (
	"go.etcd.io/raft/v3/raftpb"
)

// Proposal is one pending change to the replicated state: either a normal
// log entry (an engine.Command payload) or a cluster membership change.
// Exactly one of Data/ConfChange is set. Once the proposal's fate is known,
// one outcome is delivered on its buffered done channel (read via Wait):
// true if it reached the committed log at ProposedIndex, false if it was
// dropped (not leader, or this node lost leadership) before that.
type Proposal struct {
	Data       []byte
	ConfChange *raftpb.ConfChange

	// ProposedIndex is the index this proposal is expected to land at, set
	// once handed to the Raft group. Zero until then.
	ProposedIndex uint64

	done   chan bool
	result bool
}

// NewNormalProposal builds a proposal carrying an opaque command payload.
func NewNormalProposal(data []byte) *Proposal {
	return &Proposal{Data: data, done: make(chan bool, 1)}
}

// NewConfChangeProposal builds a proposal carrying a membership change.
func NewConfChangeProposal(cc *raftpb.ConfChange) *Proposal {
	return &Proposal{ConfChange: cc, done: make(chan bool, 1)}
}

// Wait blocks until the proposal's outcome is known, returning true if it
// committed.
func (p *Proposal) Wait() bool {
	return <-p.done
}

func (p *Proposal) complete(ok bool) {
	select {
	case p.done <- ok:
	default:
	}
}
