package realtime

import (
	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/database"
)

// Hub is the processor-facing alert sink. It fans each alert out to the
// in-process bus, the websocket API servers, Centrifugo and Discord; every
// leg is non-blocking.
type Hub struct {
	bus       *Bus
	notifier  *Notifier
	publisher *Publisher
	discord   *Discord
}

func NewHub(cfg config.RealtimeConfig, logger zerolog.Logger) *Hub {
	h := &Hub{
		bus:      NewBus(),
		notifier: NewNotifier(cfg.NotifyURLs, logger),
		discord:  NewDiscord(cfg.DiscordWebhook, cfg.FrontendURL, logger),
	}
	if cfg.CentrifugoURL != "" {
		h.publisher = NewPublisher(cfg.CentrifugoURL, cfg.CentrifugoKey, logger)
	}
	return h
}

// Bus exposes the in-process event stream.
func (h *Hub) Bus() *Bus {
	return h.bus
}

// NewSwap announces a freshly indexed swap.
func (h *Hub) NewSwap(txHash string) {
	h.bus.Publish(Event{Type: EventSwap, Ref: txHash})
	h.notifier.NotifySwap(txHash)
	if h.publisher != nil {
		h.publisher.PublishSwap(txHash)
	}
}

// NewToken announces a token launch.
func (h *Hub) NewToken(token *database.Token) {
	h.bus.Publish(Event{Type: EventToken, Ref: token.Address})
	h.notifier.NotifyToken(token.Address)
	if h.publisher != nil {
		h.publisher.PublishToken(token.Address)
	}
	h.discord.AnnounceToken(token)
}

// Close drains in-flight deliveries and shuts the bus down.
func (h *Hub) Close() {
	h.bus.Close()
	h.notifier.Wait()
	if h.publisher != nil {
		h.publisher.Close()
	}
	h.discord.Wait()
}
