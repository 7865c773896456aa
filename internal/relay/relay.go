// Package relay routes inbound webhook envelopes: it validates the event
// tag, dispatches message_created events through the AI provider, and forwards
// the generated reply to the conversation.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/obs"
	"github.com/chatrelay/chatrelay/internal/provider"
)

// AIDispatcher is the outbound AI call. *dispatch.Dispatcher implements it.
type AIDispatcher interface {
	Dispatch(ctx context.Context, message string, cfg provider.Config) dispatch.Result
}

// ReplySender posts a generated reply back to the platform. *chatwoot.Client
// implements it.
type ReplySender interface {
	SendReply(ctx context.Context, accountID, conversationID int64, content string) bool
}

// Response is the uniform envelope returned to the webhook caller.
type Response struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Details        string `json:"details,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Relay wires the router to its collaborators.
type Relay struct {
	ai         config.AIConfig
	dispatcher AIDispatcher
	sender     ReplySender
	sink       *obs.Sink
}

// New creates a relay. All collaborators are required.
func New(ai config.AIConfig, d AIDispatcher, s ReplySender, sink *obs.Sink) *Relay {
	return &Relay{ai: ai, dispatcher: d, sender: s, sink: sink}
}

// statusMessages are the canned acknowledgements for non-message events.
var statusMessages = map[event.Type]string{
	event.ConversationCreated:       "conversation created",
	event.ConversationUpdated:       "conversation updated",
	event.ConversationStatusChanged: "conversation status changed",
	event.MessageUpdated:            "message updated",
	event.WebwidgetTriggered:        "web widget triggered",
	event.ConversationTypingOn:      "typing started",
	event.ConversationTypingOff:     "typing stopped",
}

// Route validates the raw webhook body and dispatches it by event tag. The
// returned status is the HTTP code for the response: 200 on success, 400 on a
// malformed envelope, 500 on configuration or AI failure.
func (r *Relay) Route(ctx context.Context, raw []byte) (Response, int) {
	start := time.Now()

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.sink.RecordEvent("unknown", obs.LevelError, time.Since(start),
			"rejected malformed webhook body", 0, 0,
			map[string]interface{}{"error": err.Error()})
		return failure("invalid webhook payload", err.Error()), http.StatusBadRequest
	}
	if !event.Known(env.Event) {
		r.sink.RecordEvent("unknown", obs.LevelError, time.Since(start),
			"rejected unsupported event type", 0, 0,
			map[string]interface{}{"event": string(env.Event)})
		return failure("unsupported event type", string(env.Event)), http.StatusBadRequest
	}

	if env.Event == event.MessageCreated {
		resp, status := r.handleMessage(ctx, &env)
		level := obs.LevelInfo
		if !resp.Success {
			level = obs.LevelError
		}
		r.sink.RecordEvent(string(env.Event), level, time.Since(start),
			describeMessage(&env), env.ConversationID(), env.SenderID(),
			map[string]interface{}{
				"message_type": string(env.MessageType),
				"sender":       env.SenderName(),
				"success":      resp.Success,
			})
		return resp, status
	}

	if msg, ok := statusMessages[env.Event]; ok {
		r.sink.RecordEvent(string(env.Event), obs.LevelInfo, time.Since(start),
			"webhook event: "+string(env.Event), env.ConversationID(), env.SenderID(), nil)
		return success(msg, env.ConversationID()), http.StatusOK
	}

	// Unreachable while statusMessages covers every recognized non-message
	// tag; kept as a defensive branch.
	r.sink.RecordEvent(string(env.Event), obs.LevelError, time.Since(start),
		"no handler for recognized event", env.ConversationID(), env.SenderID(), nil)
	return failure("unhandled event type", string(env.Event)), http.StatusBadRequest
}

// handleMessage implements the message_created flow: loop guard, config
// check, AI dispatch, then best-effort reply delivery. A failed reply send
// never fails the response; the caller mainly wants the generated text.
func (r *Relay) handleMessage(ctx context.Context, env *event.Envelope) (Response, int) {
	if env.MessageType != event.MessageIncoming {
		return success("ignored non-incoming message", env.ConversationID()), http.StatusOK
	}

	if !r.ai.Configured() {
		return failure("AI is not configured",
			"set AI_API_URL and AI_API_TOKEN"), http.StatusInternalServerError
	}

	res := r.dispatcher.Dispatch(ctx, env.Content, providerConfig(r.ai))
	if !res.Success {
		return failure("AI call failed", res.Err), http.StatusInternalServerError
	}

	r.sender.SendReply(ctx, env.AccountID(), env.ConversationID(), res.Content)

	return success(res.Content, env.ConversationID()), http.StatusOK
}

func providerConfig(ai config.AIConfig) provider.Config {
	return provider.Config{
		Endpoint:     ai.URL,
		Token:        ai.Token,
		SystemPrompt: ai.SystemPrompt,
		Provider:     ai.Provider,
		Model:        ai.Model,
		MaxTokens:    ai.MaxTokens,
		Temperature:  ai.Temperature,
	}
}

func describeMessage(env *event.Envelope) string {
	content := env.Content
	if len(content) > 50 {
		content = content[:50] + "..."
	}
	sender := env.SenderName()
	if sender == "" {
		sender = "unknown"
	}
	return "message from " + sender + ": " + content
}

func success(msg string, conversationID int64) Response {
	return Response{
		Success:        true,
		Message:        msg,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

func failure(errMsg, details string) Response {
	return Response{
		Success:   false,
		Error:     errMsg,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
