package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"spot-presence-backend/internal/store"
)

// EventKind identifies a presence change worth telling someone about.
type EventKind int

const (
	// EventCheckedIn fans out to the spot's favorites: someone is there now.
	EventCheckedIn EventKind = iota
	// EventPlannedArrival fans out to favorites: someone intends to arrive.
	EventPlannedArrival
	// EventExpired tells the owner their stay ended and they were checked out.
	EventExpired
	// EventConfirmPrompt asks the owner to confirm or cancel a planned
	// arrival whose promised time has passed.
	EventConfirmPrompt
)

// Event is one notification job for the worker pool.
type Event struct {
	Kind     EventKind
	SpotID   int64
	SpotName string
	// UserID is the triggering user for fan-out events and the recipient for
	// owner-directed events.
	UserID   int64
	UserName string
	// ArrivalAt is set for planned-arrival events, in UTC.
	ArrivalAt time.Time
}

// retryBackoff is how long a worker waits before the single retry of a
// failed send.
const retryBackoff = 500 * time.Millisecond

// Pool manages a pool of workers delivering presence notifications.
type Pool struct {
	size      int
	jobs      chan Event
	store     store.Store
	messenger Messenger
}

// NewPool creates a new worker pool.
func NewPool(size int, s store.Store, m Messenger) *Pool {
	return &Pool{
		size:      size,
		jobs:      make(chan Event, size*4),
		store:     s,
		messenger: m,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case ev := <-p.jobs:
			p.process(ctx, ev)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an event for delivery.
func (p *Pool) Dispatch(ev Event) {
	p.jobs <- ev
}

// Jobs returns the jobs channel for testing.
func (p *Pool) Jobs() chan Event {
	return p.jobs
}

func (p *Pool) process(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventCheckedIn, EventPlannedArrival:
		p.fanOut(ctx, ev)
	case EventExpired, EventConfirmPrompt:
		p.notifyOwner(ctx, ev)
	default:
		log.Printf("Unknown notification event kind %d, dropping", ev.Kind)
	}
}

// fanOut delivers a presence-change message to every user who favorited the
// spot, except the triggering user. One recipient failing never blocks the
// rest.
func (p *Pool) fanOut(ctx context.Context, ev Event) {
	subscribers, err := p.store.FavoriteSubscribers(ctx, ev.SpotID, ev.UserID)
	if err != nil {
		log.Printf("Error fetching subscribers for spot %d: %v", ev.SpotID, err)
		return
	}
	if len(subscribers) == 0 {
		return
	}

	log.Printf("Fanning out %s to %d subscribers of spot %d", eventLabel(ev.Kind), len(subscribers), ev.SpotID)
	for _, recipient := range subscribers {
		var text string
		switch ev.Kind {
		case EventCheckedIn:
			text = fmt.Sprintf("🏄 %s checked in at '%s'!", ev.UserName, ev.SpotName)
		case EventPlannedArrival:
			// Planned arrival times are rendered in the recipient's
			// timezone, not the sender's.
			local := ev.ArrivalAt.In(recipient.Location())
			text = fmt.Sprintf("🏄 %s plans to arrive at '%s' around %s.", ev.UserName, ev.SpotName, local.Format("15:04"))
		}
		if err := p.sendWithRetry(ctx, recipient.ID, text); err != nil {
			log.Printf("Error notifying user %d about spot %d: %v", recipient.ID, ev.SpotID, err)
		}
	}
}

func (p *Pool) notifyOwner(ctx context.Context, ev Event) {
	owner, err := p.store.GetUser(ctx, ev.UserID)
	if err != nil {
		log.Printf("Error fetching user %d for notification: %v", ev.UserID, err)
		return
	}

	var text string
	switch ev.Kind {
	case EventExpired:
		text = fmt.Sprintf("⏰ Your time at '%s' is up. You have been checked out automatically.", ev.SpotName)
	case EventConfirmPrompt:
		local := ev.ArrivalAt.In(owner.Location())
		text = fmt.Sprintf("⏳ You planned to arrive at '%s' by %s. Please confirm or cancel your arrival.", ev.SpotName, local.Format("15:04"))
	}

	if err := p.sendWithRetry(ctx, owner.ID, text); err != nil {
		log.Printf("Error notifying user %d: %v", owner.ID, err)
	}
}

// sendWithRetry attempts delivery once and retries a single time after a
// short backoff. Anything beyond that is dropped; delivery is best-effort.
func (p *Pool) sendWithRetry(ctx context.Context, userID int64, text string) error {
	err := p.messenger.Send(ctx, userID, text)
	if err == nil {
		return nil
	}
	log.Printf("Send to user %d failed, retrying once: %v", userID, err)

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.messenger.Send(ctx, userID, text)
}

func eventLabel(kind EventKind) string {
	switch kind {
	case EventCheckedIn:
		return "check-in"
	case EventPlannedArrival:
		return "planned arrival"
	case EventExpired:
		return "expiry"
	case EventConfirmPrompt:
		return "confirmation prompt"
	}
	return "unknown"
}
