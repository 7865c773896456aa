// Package chatwoot posts AI-generated replies back into the originating
// Chatwoot conversation.
//
// Reply delivery is best-effort: SendReply returns false instead of an error
// so a delivery failure can never fail the webhook response. No retry happens
// at this layer.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/obs"
)

const (
	requestTimeout = 10 * time.Second
	snippetLen     = 200
)

// messagesPath is the Chatwoot REST template for posting into a conversation.
const messagesPath = "/api/v1/accounts/%d/conversations/%d/messages"

// Client posts outgoing messages to a Chatwoot instance.
type Client struct {
	baseURL  string
	botToken string
	client   *http.Client
	limiter  *rate.Limiter
	sink     *obs.Sink
}

// NewClient builds a client for the configured Chatwoot instance. The shared
// limiter caps outbound posts at 5/s (burst 10) across all conversations.
func NewClient(cfg config.ChatwootConfig, sink *obs.Sink) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		botToken: cfg.BotToken,
		client:   &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		sink:     sink,
	}
}

type outgoingMessage struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// SendReply posts content as an outgoing message. It returns false on missing
// configuration, missing identifiers, transport errors or a non-2xx status;
// every failure is logged with enough context to diagnose.
func (c *Client) SendReply(ctx context.Context, accountID, conversationID int64, content string) bool {
	ids := map[string]interface{}{
		"account_id":      accountID,
		"conversation_id": conversationID,
	}

	if c.baseURL == "" || c.botToken == "" {
		c.sink.Error(obs.EventSystem,
			"reply not sent: CHATWOOT_URL or CHATWOOT_BOT_TOKEN not configured", ids)
		return false
	}
	if accountID == 0 || conversationID == 0 {
		c.sink.Error(obs.EventSystem,
			"reply not sent: missing account or conversation identifier", ids)
		return false
	}

	if err := c.limiter.Wait(ctx); err != nil {
		ids["error"] = err.Error()
		c.sink.Error(obs.EventSystem, "reply not sent: canceled while rate limited", ids)
		return false
	}

	body, err := json.Marshal(outgoingMessage{
		Content:     content,
		MessageType: "outgoing",
		Private:     false,
	})
	if err != nil {
		ids["error"] = err.Error()
		c.sink.Error(obs.EventSystem, "reply not sent: encode message", ids)
		return false
	}

	url := c.baseURL + fmt.Sprintf(messagesPath, accountID, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		ids["error"] = err.Error()
		c.sink.Error(obs.EventSystem, "reply not sent: create request", ids)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.botToken)

	resp, err := c.client.Do(req)
	if err != nil {
		ids["error"] = err.Error()
		c.sink.Error(obs.EventSystem, "reply not sent: request failed", ids)
		return false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ids["status"] = resp.StatusCode
		ids["body"] = snippet(raw)
		c.sink.Error(obs.EventSystem, "reply rejected by Chatwoot", ids)
		return false
	}

	c.sink.Info(obs.EventSystem, "reply delivered", ids)
	return true
}

func snippet(raw []byte) string {
	if len(raw) > snippetLen {
		return string(raw[:snippetLen])
	}
	return string(raw)
}
