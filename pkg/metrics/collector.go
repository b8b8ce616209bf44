package metrics

import "time"

// symbolCollector is the subset of *server.Server the Collector depends on.
// Declared here rather than importing pkg/server to avoid a metrics->server
// dependency cycle (server already imports metrics).
type symbolCollector interface {
	CollectMetrics()
}

// raftCollector is the subset of *raftnode.Node the Collector depends on.
type raftCollector interface {
	IsLeader() bool
	PeerCount() int
	LastIndex() (uint64, error)
	AppliedIndex() uint64
}

// Collector periodically refreshes gauge metrics that have no natural
// update point of their own (book depth, spread, raft leadership/indices).
type Collector struct {
	server symbolCollector
	node   raftCollector
	stopCh chan struct{}
}

// NewCollector builds a Collector over srv and node. Either may be nil, in
// which case the corresponding metrics are left untouched.
func NewCollector(srv symbolCollector, node raftCollector) *Collector {
	return &Collector{
		server: srv,
		node:   node,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectSymbolMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectSymbolMetrics() {
	if c.server == nil {
		return
	}
	c.server.CollectMetrics()
}

func (c *Collector) collectRaftMetrics() {
	if c.node == nil {
		return
	}

	if c.node.IsLeader() {
		RaftIsLeader.Set(1)
	} else {
		RaftIsLeader.Set(0)
	}

	RaftPeersTotal.Set(float64(c.node.PeerCount()))
	RaftAppliedIndex.Set(float64(c.node.AppliedIndex()))

	if last, err := c.node.LastIndex(); err == nil {
		RaftLastIndex.Set(float64(last))
	}
}
