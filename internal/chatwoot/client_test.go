package chatwoot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatrelay/chatrelay/internal/chatwoot"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/obs"
)

func TestSendReply_PostsOutgoingMessage(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("api_access_token")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": 99}`))
	}))
	defer srv.Close()

	c := chatwoot.NewClient(config.ChatwootConfig{BaseURL: srv.URL, BotToken: "bot-token"}, obs.NewSink(10))
	ok := c.SendReply(context.Background(), 1, 456, "hello from the bot")

	if !ok {
		t.Fatal("SendReply = false, want true")
	}
	if gotPath != "/api/v1/accounts/1/conversations/456/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "bot-token" {
		t.Errorf("api_access_token = %q", gotToken)
	}
	if gotBody["content"] != "hello from the bot" {
		t.Errorf("content = %v", gotBody["content"])
	}
	if gotBody["message_type"] != "outgoing" {
		t.Errorf("message_type = %v, want outgoing", gotBody["message_type"])
	}
	if gotBody["private"] != false {
		t.Errorf("private = %v, want false", gotBody["private"])
	}
}

func TestSendReply_TrailingSlashBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := chatwoot.NewClient(config.ChatwootConfig{BaseURL: srv.URL + "/", BotToken: "t"}, obs.NewSink(10))
	if !c.SendReply(context.Background(), 2, 3, "x") {
		t.Fatal("SendReply = false, want true")
	}
	if gotPath != "/api/v1/accounts/2/conversations/3/messages" {
		t.Errorf("path = %q, want no double slash", gotPath)
	}
}

func TestSendReply_NotConfigured(t *testing.T) {
	sink := obs.NewSink(10)
	c := chatwoot.NewClient(config.ChatwootConfig{}, sink)

	if c.SendReply(context.Background(), 1, 456, "hello") {
		t.Error("SendReply without configuration = true, want false")
	}
	if entries := sink.Logs(0, obs.LevelError, ""); len(entries) != 1 {
		t.Errorf("error log entries = %d, want 1", len(entries))
	}
}

func TestSendReply_MissingIdentifiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call should happen without identifiers")
	}))
	defer srv.Close()

	c := chatwoot.NewClient(config.ChatwootConfig{BaseURL: srv.URL, BotToken: "t"}, obs.NewSink(10))
	if c.SendReply(context.Background(), 0, 456, "x") {
		t.Error("SendReply with account 0 = true, want false")
	}
	if c.SendReply(context.Background(), 1, 0, "x") {
		t.Error("SendReply with conversation 0 = true, want false")
	}
}

func TestSendReply_RejectedByServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	sink := obs.NewSink(10)
	c := chatwoot.NewClient(config.ChatwootConfig{BaseURL: srv.URL, BotToken: "bad"}, sink)

	if c.SendReply(context.Background(), 1, 456, "hello") {
		t.Error("SendReply against a 401 = true, want false")
	}
	if m := sink.Metrics(); m.FailedRequests != 1 {
		t.Errorf("failed requests = %d, want 1", m.FailedRequests)
	}
}

func TestSendReply_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // reply target is gone

	c := chatwoot.NewClient(config.ChatwootConfig{BaseURL: srv.URL, BotToken: "t"}, obs.NewSink(10))
	if c.SendReply(context.Background(), 1, 456, "hello") {
		t.Error("SendReply against a dead server = true, want false")
	}
}
