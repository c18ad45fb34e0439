package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/node"
	"github.com/dusaprotocol/pump-backend/internal/observability"
)

// streamChain serves a scripted sequence of subscriptions.
type streamChain struct {
	fakeChain

	mu      sync.Mutex
	streams []<-chan node.FilledBlock
	subs    int
}

func (s *streamChain) SubscribeFilledBlocks(ctx context.Context) (<-chan node.FilledBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil, fmt.Errorf("no stream")
	}
	stream := s.streams[0]
	s.streams = s.streams[1:]
	s.subs++
	return stream, nil
}

func TestConsumerProcessesAndResubscribes(t *testing.T) {
	chain := &streamChain{fakeChain: fakeChain{results: map[string]node.FetchResult{}}}

	first := make(chan node.FilledBlock, 1)
	first <- node.FilledBlock{Operations: []node.SignedOperation{
		callOp("O1a", "AS1pool", "buy"),
		{Hash: "O1transfer"}, // not a contract call, dropped before dispatch
		callOp("O1b", "AS1pool", "sell"),
	}}
	close(first)

	second := make(chan node.FilledBlock)
	chain.streams = []<-chan node.FilledBlock{first, second}

	f := newFixture()
	f.processor.chain = chain
	consumer := NewConsumer(chain, f.processor, observability.NewMetrics(), config.ProcessorConfig{Workers: 2}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	// Both swap operations reach the node; the bare operation does not.
	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.fetched) == 2
	}, time.Second, 5*time.Millisecond)

	// The first stream closed, so the consumer resubscribed.
	chain.mu.Lock()
	assert.Equal(t, 2, chain.subs)
	chain.mu.Unlock()

	cancel()
	assert.NoError(t, <-done)
}

func TestConsumerGivesUpAfterRepeatedFailures(t *testing.T) {
	chain := &streamChain{fakeChain: fakeChain{results: map[string]node.FetchResult{}}}

	f := newFixture()
	consumer := NewConsumer(chain, f.processor, observability.NewMetrics(), config.ProcessorConfig{Workers: 2}, zerolog.Nop())
	consumer.reconnectDelay = time.Millisecond

	err := consumer.Run(context.Background())
	assert.Error(t, err)

	chain.mu.Lock()
	defer chain.mu.Unlock()
	assert.Zero(t, chain.subs)
}
