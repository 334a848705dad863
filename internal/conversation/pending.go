package conversation

import (
	"sync"
	"time"

	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

// ReplyOutcome is the terminal result of a reply wait: either the operator's
// reply text, or a timeout. Exactly one outcome is delivered per registration.
type ReplyOutcome struct {
	Reply    string
	TimedOut bool
}

type pendingEntry struct {
	ch        chan ReplyOutcome
	timer     *time.Timer
	delivered bool
}

// PendingReplies correlates at most one outstanding reply wait per normalized
// phone number. Registering again for an occupied key replaces the table
// occupant; the displaced waiter is never resolved by an inbound message and
// terminates on its own timeout.
type PendingReplies struct {
	mu      sync.Mutex
	waiting map[string]*pendingEntry
	logger  *logging.Logger
}

// NewPendingReplies creates an empty pending-reply table.
func NewPendingReplies(logger *logging.Logger) *PendingReplies {
	if logger == nil {
		logger = logging.Default()
	}
	return &PendingReplies{
		waiting: make(map[string]*pendingEntry),
		logger:  logger,
	}
}

// Register installs a wait for key and returns a channel that receives exactly
// one ReplyOutcome: the reply when Resolve matches, or a timeout after the
// given duration.
func (p *PendingReplies) Register(key string, timeout time.Duration) <-chan ReplyOutcome {
	entry := &pendingEntry{ch: make(chan ReplyOutcome, 1)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, occupied := p.waiting[key]; occupied {
		p.logger.Warn("replacing pending reply wait", "key", key)
	}
	p.waiting[key] = entry
	// The timer is armed under the lock so a concurrent Resolve always sees
	// it; expire runs on its own goroutine and takes the lock itself.
	entry.timer = time.AfterFunc(timeout, func() {
		p.expire(key, entry)
	})
	return entry.ch
}

// Resolve completes the current wait for key with the reply text. A key with
// no occupant is a normal no-op: the operator wrote in without anyone waiting.
func (p *PendingReplies) Resolve(key, reply string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[key]
	if !ok {
		return false
	}
	delete(p.waiting, key)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	p.deliverLocked(entry, ReplyOutcome{Reply: reply})
	return true
}

// expire fires from the entry's own timer. It removes the entry only when it
// is still the table occupant, so a displaced waiter's timeout cannot evict
// the registration that replaced it.
func (p *PendingReplies) expire(key string, entry *pendingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.waiting[key]; ok && current == entry {
		delete(p.waiting, key)
	}
	p.deliverLocked(entry, ReplyOutcome{TimedOut: true})
}

// deliverLocked sends the outcome at most once. Resolve may race the timer
// firing; the delivered flag under the table lock keeps the winner exclusive.
func (p *PendingReplies) deliverLocked(entry *pendingEntry, outcome ReplyOutcome) {
	if entry.delivered {
		return
	}
	entry.delivered = true
	entry.ch <- outcome
}

// Len reports how many waits are currently registered.
func (p *PendingReplies) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
