// Package obs implements the in-memory observability sink: a bounded
// append-only log buffer plus running counters for the relay.
//
// The sink is the only shared mutable state in the process. Everything is
// guarded by a single RWMutex; nothing here performs network calls.
package obs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Level classifies a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventSystem and EventAICall tag entries that are not tied to a webhook
// event type.
const (
	EventSystem = "system"
	EventAICall = "ai_call"
)

// Entry is a single record in the log buffer.
type Entry struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	Level          Level                  `json:"level"`
	Event          string                 `json:"event"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	DurationMs     int64                  `json:"duration_ms,omitempty"`
	ConversationID int64                  `json:"conversation_id,omitempty"`
	UserID         int64                  `json:"user_id,omitempty"`
}

// Metrics is a snapshot of the running counters.
type Metrics struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	AverageResponseMs  float64          `json:"average_response_time_ms"`
	AICallsCount       int64            `json:"ai_calls_count"`
	AICallsSuccess     int64            `json:"ai_calls_success"`
	AICallsFailed      int64            `json:"ai_calls_failed"`
	LastActivity       time.Time        `json:"last_activity"`
	UptimeMs           int64            `json:"uptime_ms"`
	EventCounts        map[string]int64 `json:"event_counts"`
}

// HealthStatus aggregates the traffic-light operator checks.
type HealthStatus struct {
	Status  string          `json:"status"` // "healthy", "warning" or "error"
	Checks  map[string]bool `json:"checks"`
	Message string          `json:"message"`
}

// Sink is a thread-safe bounded log buffer with running counters.
type Sink struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int

	started      time.Time
	lastActivity time.Time

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	avgResponseMs      float64
	aiCallsCount       int64
	aiCallsSuccess     int64
	aiCallsFailed      int64
	eventCounts        map[string]int64
}

// NewSink creates a sink that retains up to maxEntries log entries.
func NewSink(maxEntries int) *Sink {
	now := time.Now().UTC()
	return &Sink{
		entries:      make([]Entry, 0, maxEntries),
		maxEntries:   maxEntries,
		started:      now,
		lastActivity: now,
		eventCounts:  make(map[string]int64),
	}
}

// append adds an entry, evicting the oldest beyond the cap, and mirrors it to
// the process logger. Caller must hold s.mu.
func (s *Sink) append(e Entry) {
	e.ID = uuid.New().String()
	e.Timestamp = time.Now().UTC()

	if len(s.entries) >= s.maxEntries {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, e)

	ev := log.Info()
	switch e.Level {
	case LevelWarn:
		ev = log.Warn()
	case LevelError:
		ev = log.Error()
	case LevelDebug:
		ev = log.Debug()
	}
	ev.Str("event", e.Event).Msg(e.Message)
}

// Info records an informational entry.
func (s *Sink) Info(event, message string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(Entry{Level: LevelInfo, Event: event, Message: message, Data: data})
}

// Warn records a warning entry.
func (s *Sink) Warn(event, message string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(Entry{Level: LevelWarn, Event: event, Message: message, Data: data})
}

// Error records an error entry and counts a failed request.
func (s *Sink) Error(event, message string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedRequests++
	s.append(Entry{Level: LevelError, Event: event, Message: message, Data: data})
}

// Debug records a debug entry.
func (s *Sink) Debug(event, message string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(Entry{Level: LevelDebug, Event: event, Message: message, Data: data})
}

// RecordEvent records a routed webhook event and updates request counters.
// A non-error level counts as a successful request.
func (s *Sink) RecordEvent(event string, level Level, duration time.Duration, message string, conversationID, userID int64, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.lastActivity = time.Now().UTC()
	s.eventCounts[event]++

	if level == LevelError {
		s.failedRequests++
	} else {
		s.successfulRequests++
	}

	if duration > 0 {
		d := float64(duration.Milliseconds())
		total := s.avgResponseMs*float64(s.totalRequests-1) + d
		s.avgResponseMs = total / float64(s.totalRequests)
	}

	s.append(Entry{
		Level:          level,
		Event:          event,
		Message:        message,
		Data:           data,
		DurationMs:     duration.Milliseconds(),
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// RecordAICall records the terminal outcome of one AI dispatch (success or
// exhausted retries) and updates the AI counters.
func (s *Sink) RecordAICall(success bool, duration time.Duration, provider, model, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aiCallsCount++
	data := map[string]interface{}{
		"provider":    provider,
		"model":       model,
		"duration_ms": duration.Milliseconds(),
		"success":     success,
	}

	if success {
		s.aiCallsSuccess++
		s.append(Entry{
			Level:      LevelInfo,
			Event:      EventAICall,
			Message:    "AI call succeeded: " + provider + " " + model,
			Data:       data,
			DurationMs: duration.Milliseconds(),
		})
		return
	}

	s.aiCallsFailed++
	s.failedRequests++
	data["error"] = errMsg
	s.append(Entry{
		Level:      LevelError,
		Event:      EventAICall,
		Message:    "AI call failed: " + provider + " " + model + ": " + errMsg,
		Data:       data,
		DurationMs: duration.Milliseconds(),
	})
}

// Logs returns entries newest-first, optionally filtered by level and event.
// limit <= 0 means no limit.
func (s *Sink) Logs(limit int, level Level, event string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if level != "" && e.Level != level {
			continue
		}
		if event != "" && e.Event != event {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the current number of buffered entries.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Metrics returns a snapshot of the counters.
func (s *Sink) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64, len(s.eventCounts))
	for k, v := range s.eventCounts {
		counts[k] = v
	}

	return Metrics{
		TotalRequests:      s.totalRequests,
		SuccessfulRequests: s.successfulRequests,
		FailedRequests:     s.failedRequests,
		AverageResponseMs:  s.avgResponseMs,
		AICallsCount:       s.aiCallsCount,
		AICallsSuccess:     s.aiCallsSuccess,
		AICallsFailed:      s.aiCallsFailed,
		LastActivity:       s.lastActivity,
		UptimeMs:           time.Since(s.started).Milliseconds(),
		EventCounts:        counts,
	}
}

// Health evaluates three operator checks: recent activity within 5 minutes,
// error rate below 10%, and AI call success rate above 80%. Checks with zero
// traffic pass vacuously. One failed check is a warning, two or more is an
// error.
func (s *Sink) Health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checks := map[string]bool{
		"recent_activity": time.Since(s.lastActivity) < 5*time.Minute,
		"low_error_rate": s.totalRequests == 0 ||
			float64(s.failedRequests)/float64(s.totalRequests) < 0.1,
		"ai_calls_working": s.aiCallsCount == 0 ||
			float64(s.aiCallsSuccess)/float64(s.aiCallsCount) > 0.8,
	}

	failed := make([]string, 0, len(checks))
	for name, ok := range checks {
		if !ok {
			failed = append(failed, name)
		}
	}

	status := "healthy"
	message := "all checks passing"
	switch {
	case len(failed) >= 2:
		status = "error"
		message = "failed checks: " + joinSorted(failed)
	case len(failed) == 1:
		status = "warning"
		message = "failed checks: " + failed[0]
	}

	return HealthStatus{Status: status, Checks: checks, Message: message}
}

// ClearLogs discards all buffered entries. Counters are untouched.
func (s *Sink) ClearLogs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

func joinSorted(names []string) string {
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// ResetMetrics zeroes all counters and restarts the uptime clock.
func (s *Sink) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.started = now
	s.lastActivity = now
	s.totalRequests = 0
	s.successfulRequests = 0
	s.failedRequests = 0
	s.avgResponseMs = 0
	s.aiCallsCount = 0
	s.aiCallsSuccess = 0
	s.aiCallsFailed = 0
	s.eventCounts = make(map[string]int64)
}
