// Package event defines the inbound Chatwoot webhook envelope: the closed
// set of recognized event tags and a best-effort view of the per-variant
// payload fields needed to route and reply.
//
// Payload shapes differ per variant; only fields the variant guarantees are
// trusted, everything else is best-effort extraction.
package event

import (
	"encoding/json"
	"strconv"
)

// Type is the event discriminant tag.
type Type string

const (
	ConversationCreated       Type = "conversation_created"
	ConversationUpdated       Type = "conversation_updated"
	ConversationStatusChanged Type = "conversation_status_changed"
	MessageCreated            Type = "message_created"
	MessageUpdated            Type = "message_updated"
	WebwidgetTriggered        Type = "webwidget_triggered"
	ConversationTypingOn      Type = "conversation_typing_on"
	ConversationTypingOff     Type = "conversation_typing_off"
)

// knownTypes is the single source of truth for the recognized set; the
// router's validation and dispatch both read it so they cannot drift apart.
var knownTypes = []Type{
	ConversationCreated,
	ConversationUpdated,
	ConversationStatusChanged,
	MessageCreated,
	MessageUpdated,
	WebwidgetTriggered,
	ConversationTypingOn,
	ConversationTypingOff,
}

var known = func() map[Type]struct{} {
	m := make(map[Type]struct{}, len(knownTypes))
	for _, t := range knownTypes {
		m[t] = struct{}{}
	}
	return m
}()

// Known reports whether t is one of the recognized event tags.
func Known(t Type) bool {
	_, ok := known[t]
	return ok
}

// KnownTypes returns the recognized tags in declaration order.
func KnownTypes() []string {
	out := make([]string, len(knownTypes))
	for i, t := range knownTypes {
		out[i] = string(t)
	}
	return out
}

// MessageType is the message direction discriminant. Chatwoot sends it as a
// string in webhook payloads ("incoming", "outgoing", "template") but as a
// number (0..3) on embedded message records, so both forms decode.
type MessageType string

const (
	MessageIncoming MessageType = "incoming"
	MessageOutgoing MessageType = "outgoing"
	MessageActivity MessageType = "activity"
	MessageTemplate MessageType = "template"
)

func (m *MessageType) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MessageType(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	switch n {
	case 0:
		*m = MessageIncoming
	case 1:
		*m = MessageOutgoing
	case 2:
		*m = MessageActivity
	case 3:
		*m = MessageTemplate
	default:
		*m = MessageType(strconv.Itoa(n))
	}
	return nil
}

// FlexID is an identifier that may arrive as a JSON number (conversations,
// messages) or a string (webwidget session ids).
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Int64 returns the numeric value, or false for string ids.
func (f FlexID) Int64() (int64, bool) {
	if f == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Party identifies a contact, agent or user attached to the event.
type Party struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ConversationRef is the embedded conversation record.
type ConversationRef struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	Status    string `json:"status"`
}

// AccountRef is the embedded account record.
type AccountRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Envelope is the tagged union over event types. Conversation events spread
// their attributes at the top level (hence the top-level ID and Status);
// message events carry content plus the conversation and account records.
type Envelope struct {
	Event        Type             `json:"event"`
	ID           FlexID           `json:"id"`
	Content      string           `json:"content"`
	MessageType  MessageType      `json:"message_type"`
	Private      bool             `json:"private"`
	Status       string           `json:"status"`
	Sender       *Party           `json:"sender"`
	Contact      *Party           `json:"contact"`
	User         *Party           `json:"user"`
	Conversation *ConversationRef `json:"conversation"`
	Account      *AccountRef      `json:"account"`
}

// ConversationID returns the best-effort conversation identifier for the
// variant: the embedded conversation record, else a numeric top-level id
// (conversation events), else 0.
func (e *Envelope) ConversationID() int64 {
	if e.Conversation != nil && e.Conversation.ID != 0 {
		return e.Conversation.ID
	}
	if n, ok := e.ID.Int64(); ok {
		return n
	}
	return 0
}

// AccountID returns the best-effort account identifier, else 0.
func (e *Envelope) AccountID() int64 {
	if e.Account != nil && e.Account.ID != 0 {
		return e.Account.ID
	}
	if e.Conversation != nil {
		return e.Conversation.AccountID
	}
	return 0
}

// SenderName returns the display name of whoever triggered the event.
func (e *Envelope) SenderName() string {
	if e.Sender != nil && e.Sender.Name != "" {
		return e.Sender.Name
	}
	if e.Contact != nil && e.Contact.Name != "" {
		return e.Contact.Name
	}
	if e.User != nil {
		return e.User.Name
	}
	return ""
}

// SenderID returns the sender's id, else 0.
func (e *Envelope) SenderID() int64 {
	if e.Sender != nil && e.Sender.ID != 0 {
		return e.Sender.ID
	}
	if e.User != nil {
		return e.User.ID
	}
	return 0
}
