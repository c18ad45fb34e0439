package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"
)

// Centrifugo channels.
const (
	swapsChannel  = "pump.swaps"
	tokensChannel = "pump.tokens"
)

// Publisher pushes events to Centrifugo for browser clients subscribed to
// live trades.
type Publisher struct {
	gc     *gocent.Client
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPublisher(apiURL, apiKey string, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		gc: gocent.New(gocent.Config{
			Addr: apiURL,
			Key:  apiKey,
		}),
		logger: logger.With().Str("component", "realtime-publisher").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// PublishSwap broadcasts a swap's transaction hash.
func (p *Publisher) PublishSwap(txHash string) {
	p.publish(swapsChannel, Event{Type: EventSwap, Ref: txHash})
}

// PublishToken broadcasts a launched token's address.
func (p *Publisher) PublishToken(address string) {
	p.publish(tokensChannel, Event{Type: EventToken, Ref: address})
}

func (p *Publisher) publish(channel string, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal event payload")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.gc.Publish(p.ctx, channel, payload); err != nil {
			// Ignore errors if context is cancelled (shutting down)
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().
				Err(err).
				Str("channel", channel).
				Msg("Failed to publish event")
		}
	}()
}

// Close stops in-flight publishes and waits for them.
func (p *Publisher) Close() {
	p.cancel()
	p.wg.Wait()
}
