package realtime

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const notifyTimeout = 5 * time.Second

// Notifier pings the websocket API servers so they can push fresh rows to
// their clients. Notifications are best effort; a dead endpoint is logged
// and forgotten.
type Notifier struct {
	endpoints []string
	client    *http.Client
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

func NewNotifier(endpoints []string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		endpoints: endpoints,
		client:    &http.Client{Timeout: notifyTimeout},
		logger:    logger.With().Str("component", "notifier").Logger(),
	}
}

// NotifySwap announces a freshly indexed swap.
func (n *Notifier) NotifySwap(txHash string) {
	n.fanOut("/add-swap?txHash=" + url.QueryEscape(txHash))
}

// NotifyToken announces a token launch.
func (n *Notifier) NotifyToken(address string) {
	n.fanOut("/add-token?address=" + url.QueryEscape(address))
}

func (n *Notifier) fanOut(path string) {
	for _, endpoint := range n.endpoints {
		target := endpoint + path
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.get(target)
		}()
	}
}

func (n *Notifier) get(target string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		n.logger.Warn().Err(err).Str("url", target).Msg("Bad notify URL")
		return
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("url", target).Msg("Notify failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn().Int("status", resp.StatusCode).Str("url", target).Msg("Notify rejected")
	}
}

// Wait blocks until in-flight notifications finish. Called on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
