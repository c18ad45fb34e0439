package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/database"
)

const discordTimeout = 10 * time.Second

// Discord posts a launch embed to a webhook. A zero-value webhook URL
// disables it.
type Discord struct {
	webhook     string
	frontendURL string
	client      *http.Client
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

func NewDiscord(webhook, frontendURL string, logger zerolog.Logger) *Discord {
	return &Discord{
		webhook:     webhook,
		frontendURL: frontendURL,
		client:      &http.Client{Timeout: discordTimeout},
		logger:      logger.With().Str("component", "discord").Logger(),
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       struct {
		URL string `json:"url,omitempty"`
	} `json:"image,omitempty"`
}

type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

// AnnounceToken posts a launch alert. Best effort, never blocks the caller.
func (d *Discord) AnnounceToken(token *database.Token) {
	if d.webhook == "" {
		return
	}

	embed := discordEmbed{
		Title: token.Name + " (" + token.Symbol + ")",
	}
	if token.Description != nil {
		embed.Description = *token.Description
	}
	if token.ImageURI != nil {
		embed.Image.URL = *token.ImageURI
	}
	msg := discordMessage{
		Content: "[token page](" + d.frontendURL + token.Address + ")",
		Embeds:  []discordEmbed{embed},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to marshal launch alert")
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.post(body)
	}()
}

func (d *Discord) post(body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), discordTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhook, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn().Err(err).Msg("Bad webhook URL")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Launch alert failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn().Int("status", resp.StatusCode).Msg("Launch alert rejected")
	}
}

// Wait blocks until in-flight alerts finish.
func (d *Discord) Wait() {
	d.wg.Wait()
}
