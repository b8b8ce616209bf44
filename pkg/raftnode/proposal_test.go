package raftnode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalWaitResolvesOnComplete(t *testing.T) {
	p := NewNormalProposal([]byte("payload"))
	go p.complete(true)

	result := make(chan bool, 1)
	go func() { result <- p.Wait() }()

	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("proposal never resolved")
	}
}

func TestProposalCompleteIsNonBlockingWithoutWaiter(t *testing.T) {
	p := NewNormalProposal([]byte("payload"))
	done := make(chan struct{})
	go func() {
		p.complete(false)
		p.complete(true) // second call must not block even though nobody read yet
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("complete blocked")
	}
	require.False(t, p.Wait(), "buffered channel delivers the first completion")
}
