package raftnode

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/cuemby/spotmatch/pkg/engine"
	spotlog "github.com/cuemby/spotmatch/pkg/log"
	"github.com/cuemby/spotmatch/pkg/raftlog"
	"github.com/rs/zerolog"

	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

const (
	electionTick      = 10
	heartbeatTick     = 3
	tickInterval      = 100 * time.Millisecond
	saveSnapshotEvery = 60 * time.Second
	outboxSize        = 1000
)

// StateMachine is the contract a Node drives: committed entries are handed
// to Apply one at a time, and the whole state can be captured or restored
// for snapshotting. engine.Manager satisfies this.
type StateMachine interface {
	Apply(index uint64, payload []byte) engine.ApplyResult
	Snapshot() ([]byte, error)
	Restore(lastIndex, lastTerm uint64, data []byte) error
}

// Node drives one local Raft participant: it owns the RawNode, the durable
// FileStore, and the state machine, and serializes all access to them
// through a single goroutine's event loop (Run).
type Node struct {
	id uint64

	raw     *raft.RawNode
	store   *raftlog.FileStore
	machine StateMachine

	inbox    chan raftpb.Message
	outbox   chan raftpb.Message
	proposeC chan *Proposal

	proposed *list.List // *Proposal, ordered by ProposedIndex ascending

	peers []uint64 // configured node_list ids (self included), for RunInitRoutine

	// nextIndex is this node's best guess at the raft log index the next
	// proposal will land at. It is resynced from storage's last index at
	// the start of every batch of proposals (storage only reflects index
	// N once a prior Ready has been advanced past it), then advanced by
	// one per proposal accepted within the batch, since every accepted
	// Propose/ProposeConfChange appends exactly one entry.
	nextIndex uint64
}

// Config configures a new Node.
type Config struct {
	ID            uint64
	Peers         []uint64 // configured node_list ids, self included; drives RunInitRoutine on a fresh bootstrap
	BasePath      string
	Bootstrap     bool // true only for a node starting a brand-new cluster
	StateMachine  StateMachine
	OutboxBuffer  int
	InboxBuffer   int
	ProposeBuffer int
}

// New constructs a Node ready to Run. It opens (or creates) the durable
// store at cfg.BasePath and builds the underlying RawNode from it.
func New(cfg Config) (*Node, error) {
	// A bootstrap node seeds its genesis snapshot/conf state with itself as
	// the sole voter. Every other configured peer joins later via a
	// AddNode conf-change proposed once this node is up, never baked into
	// genesis (see RunInitRoutine).
	store, err := raftlog.Open(cfg.BasePath, cfg.Bootstrap, []uint64{cfg.ID})
	if err != nil {
		return nil, fmt.Errorf("open raft store: %w", err)
	}

	snap, err := store.MemoryStorage.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	raftCfg := &raft.Config{
		ID:              cfg.ID,
		ElectionTick:    electionTick,
		HeartbeatTick:   heartbeatTick,
		Storage:         store,
		Applied:         snap.Metadata.Index,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
		CheckQuorum:     true,
		PreVote:         true,
	}

	raw, err := raft.NewRawNode(raftCfg)
	if err != nil {
		return nil, fmt.Errorf("new raw node: %w", err)
	}

	lastIndex, err := store.MemoryStorage.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("read last index: %w", err)
	}
	outboxBuf := cfg.OutboxBuffer
	if outboxBuf == 0 {
		outboxBuf = outboxSize
	}
	inboxBuf := cfg.InboxBuffer
	if inboxBuf == 0 {
		inboxBuf = 10000
	}
	proposeBuf := cfg.ProposeBuffer
	if proposeBuf == 0 {
		proposeBuf = 1000
	}

	return &Node{
		id:        cfg.ID,
		raw:       raw,
		store:     store,
		machine:   cfg.StateMachine,
		inbox:     make(chan raftpb.Message, inboxBuf),
		outbox:    make(chan raftpb.Message, outboxBuf),
		proposeC:  make(chan *Proposal, proposeBuf),
		proposed:  list.New(),
		peers:     cfg.Peers,
		nextIndex: lastIndex + 1,
	}, nil
}

// Outbox returns the channel Node sends outbound messages on, for a
// transport layer to drain and deliver to peers.
func (n *Node) Outbox() <-chan raftpb.Message { return n.outbox }

// IsLeader reports whether this node currently believes itself the leader.
func (n *Node) IsLeader() bool {
	return n.raw.Status().RaftState == raft.StateLeader
}

// AppliedIndex returns the last Raft log index applied to the state
// machine, for metrics and snapshot-interval decisions.
func (n *Node) AppliedIndex() uint64 {
	return n.raw.Status().Applied
}

// LastIndex returns the last index currently present in the durable log.
func (n *Node) LastIndex() (uint64, error) {
	return n.store.MemoryStorage.LastIndex()
}

// PeerCount returns the number of voters this node's latest conf state
// tracks, for metrics.
func (n *Node) PeerCount() int {
	return len(n.raw.Status().Config.Voters[0])
}

// Step hands an inbound message from a peer to the node loop.
func (n *Node) Step(msg raftpb.Message) {
	n.inbox <- msg
}

// Propose submits a normal command and blocks until its fate (committed or
// dropped) is known.
func (n *Node) Propose(ctx context.Context, data []byte) bool {
	p := NewNormalProposal(data)
	select {
	case n.proposeC <- p:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-waitChan(p):
		return ok
	case <-ctx.Done():
		return false
	}
}

// ProposeConfChange submits a membership change and blocks until committed
// or dropped.
func (n *Node) ProposeConfChange(ctx context.Context, cc *raftpb.ConfChange) bool {
	p := NewConfChangeProposal(cc)
	select {
	case n.proposeC <- p:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-waitChan(p):
		return ok
	case <-ctx.Done():
		return false
	}
}

// RunInitRoutine is the designated initialisation routine a fresh bootstrap
// leader runs once, after its gRPC endpoints are serving: it waits for this
// node to win its single-voter genesis election, then proposes an AddNode
// conf-change for every other id in the configured node_list, in order,
// awaiting each one's commit before proposing the next. It is a no-op (after
// the leader wait) on a node with no configured peers beyond itself.
func (n *Node) RunInitRoutine(ctx context.Context) error {
	for !n.IsLeader() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	for _, id := range n.peers {
		if id == n.id {
			continue
		}
		cc := &raftpb.ConfChange{Type: raftpb.ConfChangeAddNode, NodeID: id}
		if !n.ProposeConfChange(ctx, cc) {
			return fmt.Errorf("add node %d: conf change not committed", id)
		}
	}
	return nil
}

func waitChan(p *Proposal) <-chan bool {
	ch := make(chan bool, 1)
	go func() { ch <- p.Wait() }()
	return ch
}

// Run is the node's single event loop: it must run on its own goroutine and
// owns all mutation of raw/store/machine. It returns only when ctx is
// cancelled.
func (n *Node) Run(ctx context.Context) {
	log := spotlog.WithNode(n.id)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	snapshotTicker := time.NewTicker(saveSnapshotEvery)
	defer snapshotTicker.Stop()
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()

	var lastSnapshotIndex uint64

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("node loop stopping")
			if err := n.store.Close(); err != nil {
				log.Warn().Err(err).Msg("close store failed")
			}
			return

		case msg := <-n.inbox:
			n.drainStep(msg, log)

		case p := <-n.proposeC:
			n.drainPropose(p)

		case <-ticker.C:
			n.raw.Tick()

		case <-snapshotTicker.C:
			applied := n.raw.Status().Applied
			if applied > lastSnapshotIndex {
				n.saveSnapshot(log, applied)
				lastSnapshotIndex = applied
			}

		case <-idle.C:
		}

		n.onReady(log)
	}
}

func (n *Node) drainStep(first raftpb.Message, log zerolog.Logger) {
	if err := n.raw.Step(first); err != nil {
		log.Warn().Err(err).Msg("step message failed")
	}
	for {
		select {
		case msg := <-n.inbox:
			if err := n.raw.Step(msg); err != nil {
				log.Warn().Err(err).Msg("step message failed")
			}
		default:
			return
		}
	}
}

func (n *Node) drainPropose(first *Proposal) {
	if lastIndex, err := n.store.MemoryStorage.LastIndex(); err == nil && lastIndex+1 > n.nextIndex {
		n.nextIndex = lastIndex + 1
	}
	n.propose(first)
	for {
		select {
		case p := <-n.proposeC:
			n.propose(p)
		default:
			return
		}
	}
}

// propose hands one proposal to the Raft group and records it for later
// resolution once its index is applied. A proposal that fails (not leader,
// or an immediate rejection from the Raft group) is resolved false right
// away instead of being queued.
func (n *Node) propose(p *Proposal) {
	status := n.raw.Status()
	if status.RaftState != raft.StateLeader {
		p.complete(false)
		return
	}

	var err error
	if p.ConfChange != nil {
		err = n.raw.ProposeConfChange(*p.ConfChange)
	} else {
		err = n.raw.Propose(p.Data)
	}
	if err != nil {
		spotlog.WithNode(n.id).Warn().Err(err).Msg("propose failed")
		p.complete(false)
		return
	}

	p.ProposedIndex = n.nextIndex
	n.nextIndex++
	n.proposed.PushBack(p)
}

// noticeProposed resolves every pending proposal whose ProposedIndex has
// been reached by lastApplied, walking the queue from the front since
// proposals are appended in increasing index order.
func (n *Node) noticeProposed(lastApplied uint64) {
	if lastApplied == 0 {
		return
	}
	for e := n.proposed.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*Proposal)
		if p.ProposedIndex <= lastApplied {
			p.complete(true)
			n.proposed.Remove(e)
		}
		e = next
	}
}

// onReady drains one round of RawNode.Ready(), persisting entries/hard
// state, applying committed entries to the state machine, delivering
// outbound messages, and finally advancing the raft group. This is the
// entire contract an etcd-raft-style consumer must implement.
func (n *Node) onReady(log zerolog.Logger) {
	if !n.raw.HasReady() {
		return
	}
	rd := n.raw.Ready()

	if !raft.IsEmptySnap(rd.Snapshot) {
		if err := n.store.ApplySnapshot(rd.Snapshot); err != nil {
			log.Error().Err(err).Msg("apply snapshot failed")
		} else if err := n.machine.Restore(rd.Snapshot.Metadata.Index, rd.Snapshot.Metadata.Term, rd.Snapshot.Data); err != nil {
			log.Error().Err(err).Msg("restore state machine from snapshot failed")
		}
	}

	if len(rd.Entries) > 0 {
		if err := n.store.AppendEntries(rd.Entries); err != nil {
			log.Error().Err(err).Msg("persist entries failed")
			return
		}
	}

	if !raft.IsEmptyHardState(rd.HardState) {
		if err := n.store.SetHardState(rd.HardState); err != nil {
			log.Error().Err(err).Msg("persist hard state failed")
			return
		}
	}

	n.deliver(rd.Messages)

	lastApplied := n.applyEntries(rd.CommittedEntries, log)

	n.raw.Advance(rd)

	n.noticeProposed(lastApplied)

	// A node that is no longer leader fails every proposal still in flight.
	if rd.SoftState != nil && rd.SoftState.RaftState != raft.StateLeader {
		for e := n.proposed.Front(); e != nil; e = e.Next() {
			e.Value.(*Proposal).complete(false)
		}
		n.proposed.Init()
	}
}

func (n *Node) applyEntries(entries []raftpb.Entry, log zerolog.Logger) uint64 {
	var lastIndex uint64
	for _, entry := range entries {
		switch entry.Type {
		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				log.Error().Err(err).Msg("unmarshal conf change failed")
				break
			}
			cs := n.raw.ApplyConfChange(cc)
			n.store.SetConfState(*cs)
		case raftpb.EntryNormal:
			if len(entry.Data) == 0 {
				break
			}
			result := n.machine.Apply(entry.Index, entry.Data)
			if result.Err != nil {
				log.Debug().Err(result.Err).Uint64("index", entry.Index).Msg("command rejected")
			}
		}
		lastIndex = entry.Index
	}
	return lastIndex
}

func (n *Node) deliver(messages []raftpb.Message) {
	for _, msg := range messages {
		select {
		case n.outbox <- msg:
		default:
			spotlog.WithNode(n.id).Warn().
				Str("to", fmt.Sprintf("%d", msg.To)).
				Msg("outbox full, dropping raft message (raft will retry)")
		}
	}
}

func (n *Node) saveSnapshot(log zerolog.Logger, applied uint64) {
	data, err := n.machine.Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("state machine snapshot failed")
		return
	}
	if err := n.store.SaveSnapshot(data, applied); err != nil {
		log.Error().Err(err).Msg("save snapshot failed")
		return
	}
	log.Info().Uint64("applied", applied).Msg("saved snapshot")
}
