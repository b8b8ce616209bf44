package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	spotlog "github.com/cuemby/spotmatch/pkg/log"
	"go.etcd.io/raft/v3/raftpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const dialTimeout = 3 * time.Second

// PeerClient lazily dials every peer in the cluster's address book and
// forwards outbound raft messages to them. A connection is created on first
// use and kept open; a send error marks the peer invalid so the next send
// re-dials instead of retrying a broken channel forever.
type PeerClient struct {
	mu    sync.Mutex
	addrs map[uint64]string
	conns map[uint64]*grpc.ClientConn
}

// NewPeerClient builds a client over the given id->address book.
func NewPeerClient(addrs map[uint64]string) *PeerClient {
	return &PeerClient{
		addrs: addrs,
		conns: make(map[uint64]*grpc.ClientConn),
	}
}

func (c *PeerClient) connFor(id uint64) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[id]; ok {
		return conn, nil
	}

	addr, ok := c.addrs[id]
	if !ok {
		return nil, fmt.Errorf("no known address for peer %d", id)
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial peer %d at %s: %w", id, addr, err)
	}
	c.conns[id] = conn
	return conn, nil
}

// invalidate drops a broken connection so the next Send re-dials.
func (c *PeerClient) invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[id]; ok {
		conn.Close()
		delete(c.conns, id)
	}
}

// Send delivers one raft message to its destination peer, dialing lazily.
func (c *PeerClient) Send(ctx context.Context, msg raftpb.Message) error {
	conn, err := c.connFor(msg.To)
	if err != nil {
		return err
	}

	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req := &PostDataRequest{Data: [][]byte{data}}
	resp := new(PostDataResponse)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := conn.Invoke(dialCtx, postDataMethod, req, resp); err != nil {
		c.invalidate(msg.To)
		return fmt.Errorf("post data to peer %d: %w", msg.To, err)
	}
	return nil
}

// Run drains outbound messages from ch and sends them to their destination,
// logging (but not blocking on) delivery failures so raft's own retry logic
// can pick up the slack on the next heartbeat/tick.
func (c *PeerClient) Run(ctx context.Context, ch <-chan raftpb.Message) {
	log := spotlog.WithComponent("transport")
	for {
		select {
		case <-ctx.Done():
			c.closeAll()
			return
		case msg, ok := <-ch:
			if !ok {
				c.closeAll()
				return
			}
			if err := c.Send(ctx, msg); err != nil {
				log.Debug().Err(err).Uint64("to", msg.To).Msg("send raft message failed, will retry on next tick")
			}
		}
	}
}

func (c *PeerClient) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}
}
