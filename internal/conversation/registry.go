package conversation

import (
	"fmt"
	"sync"
	"time"
)

// Role identifies who authored a message in a conversation.
type Role string

const (
	// RoleAssistant marks messages the coding assistant sent to the operator.
	RoleAssistant Role = "assistant"
	// RoleUser marks messages the operator sent back over WhatsApp.
	RoleUser Role = "user"
)

// Message is one entry in a conversation's ordered history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationRecord struct {
	id           string
	phone        string
	startedAt    time.Time
	lastActivity time.Time
	active       bool
	history      []Message
}

// Registry maps phone numbers to conversations and holds their message
// history for the lifetime of the process. All state is owned by the struct;
// handlers receive a shared *Registry at startup.
type Registry struct {
	mu      sync.Mutex
	byPhone map[string]string
	byID    map[string]*conversationRecord
	order   []string
	seq     int
}

// NewRegistry creates an empty conversation registry.
func NewRegistry() *Registry {
	return &Registry{
		byPhone: make(map[string]string),
		byID:    make(map[string]*conversationRecord),
	}
}

// GetOrCreate returns the active conversation mapped to the raw phone number,
// creating one when no active mapping exists. Conversation ids combine a
// strictly increasing sequence with the creation time.
func (r *Registry) GetOrCreate(phone string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPhone[phone]; ok {
		if rec, ok := r.byID[id]; ok && rec.active {
			return id
		}
	}

	r.seq++
	now := time.Now()
	id := fmt.Sprintf("conv-%d-%d", r.seq, now.Unix())
	r.byID[id] = &conversationRecord{
		id:           id,
		phone:        phone,
		startedAt:    now,
		lastActivity: now,
		active:       true,
	}
	r.byPhone[phone] = id
	r.order = append(r.order, id)
	return id
}

// AppendMessage adds an entry to a conversation's history and refreshes its
// last-activity time. Unknown ids are a silent no-op.
func (r *Registry) AppendMessage(id string, role Role, text string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return
	}
	rec.history = append(rec.history, Message{Role: role, Text: text, Timestamp: ts})
	rec.lastActivity = time.Now()
}

// History returns the most recent limit entries in chronological order, or the
// full history when limit exceeds its length. Unknown ids yield nil.
func (r *Registry) History(id string, limit int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil
	}
	history := rec.history
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// ListActive returns every conversation id in creation order. Conversations
// are never removed, so this covers the whole process lifetime.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// LatestID returns the most recently created conversation id.
func (r *Registry) LatestID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return "", false
	}
	return r.order[len(r.order)-1], true
}

// Count reports how many conversations exist.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
