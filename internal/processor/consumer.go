package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/node"
	"github.com/dusaprotocol/pump-backend/internal/observability"
)

const (
	maxConsecutiveErrors = 10
	reconnectDelay       = 5 * time.Second
)

// Consumer drives the processor from the node's filled-block stream. Each
// operation is handled on its own worker, bounded by a semaphore so a burst
// of blocks cannot spawn unbounded goroutines.
type Consumer struct {
	chain     Chain
	processor *Processor
	metrics   *observability.Metrics
	logger    zerolog.Logger

	workers        *semaphore.Weighted
	reconnectDelay time.Duration
	wg             sync.WaitGroup
}

func NewConsumer(chain Chain, p *Processor, metrics *observability.Metrics, cfg config.ProcessorConfig, logger zerolog.Logger) *Consumer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 16
	}
	return &Consumer{
		chain:          chain,
		processor:      p,
		metrics:        metrics,
		logger:         logger.With().Str("component", "consumer").Logger(),
		workers:        semaphore.NewWeighted(workers),
		reconnectDelay: reconnectDelay,
	}
}

// Run consumes the block stream until the context is cancelled, resubscribing
// when the stream drops. It returns early only after too many consecutive
// subscription failures.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.wg.Wait()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		blocks, err := c.chain.SubscribeFilledBlocks(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to subscribe to filled blocks")
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				c.logger.Error().Msg("Too many consecutive subscription failures, stopping")
				return err
			}
			if err := sleepCtx(ctx, c.reconnectDelay); err != nil {
				return nil
			}
			continue
		}
		consecutiveErrors = 0
		c.logger.Info().Msg("Subscribed to filled blocks")

		c.consume(ctx, blocks)
		if ctx.Err() != nil {
			return nil
		}

		c.metrics.StreamReconnects.Inc()
		c.logger.Warn().Msg("Block stream dropped, resubscribing")
	}
}

// consume drains one subscription until it closes or the context is
// cancelled.
func (c *Consumer) consume(ctx context.Context, blocks <-chan node.FilledBlock) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			c.dispatch(ctx, block)
		}
	}
}

// dispatch fans the block's operations out to workers. Operation order
// inside a block is preserved per worker slot acquisition, not end to end;
// swap rows carry their slot index for consumers that need ordering.
func (c *Consumer) dispatch(ctx context.Context, block node.FilledBlock) {
	for i, op := range block.Operations {
		if op.CallSC == nil {
			continue
		}
		if err := c.workers.Acquire(ctx, 1); err != nil {
			return
		}

		c.wg.Add(1)
		go func(op node.SignedOperation, indexInSlot int) {
			defer c.wg.Done()
			defer c.workers.Release(1)
			c.processor.ProcessOperation(ctx, op, indexInSlot)
		}(op, i)
	}
}
