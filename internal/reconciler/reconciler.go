package reconciler

import (
	"context"
	"errors"
	"log"
	"time"

	"spot-presence-backend/config"
	"spot-presence-backend/internal/notification"
	"spot-presence-backend/internal/store"
)

// Service enforces the check-in ledger's time-based transitions. It runs two
// independent scans each cycle: expiring present records, and walking planned
// records through the prompt-then-delete grace flow.
//
// The service holds plain references to the store and the notification pool,
// so a test can run a single cycle synchronously with RunOnce.
type Service struct {
	cfg   *config.ReconcilerConfig
	store store.Store
	pool  *notification.Pool
}

// NewService creates a reconciler over the given store and notification pool.
func NewService(cfg *config.ReconcilerConfig, s store.Store, pool *notification.Pool) *Service {
	return &Service{cfg: cfg, store: s, pool: pool}
}

// Run executes reconciliation cycles on the configured interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Reconciler is disabled. Not starting.")
		return
	}
	log.Println("Starting reconciler service...")

	s.RunOnce(ctx, time.Now().UTC())

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler service shutting down.")
			return
		case <-timer.C:
			s.RunOnce(ctx, time.Now().UTC())
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs one full reconciliation cycle at the given instant. The
// scans are independent; a failure in one never aborts the other, and a
// failure on one record never aborts the scan of the remaining records.
func (s *Service) RunOnce(ctx context.Context, now time.Time) {
	log.Println("Executing reconciliation cycle...")
	s.expirePresent(ctx, now)
	s.promptPlanned(ctx, now)
	s.sweepAwaiting(ctx, now)
	log.Println("Reconciliation cycle finished.")
}

// expirePresent deactivates present records whose stay has run out. The
// deactivation is authoritative; the notification afterwards is advisory and
// its failure is not rolled back.
func (s *Service) expirePresent(ctx context.Context, now time.Time) {
	expired, err := s.store.ExpiredPresent(ctx, now)
	if err != nil {
		log.Printf("Error scanning expired present check-ins: %v", err)
		return
	}

	for _, record := range expired {
		if err := s.store.Deactivate(ctx, record.ID); err != nil {
			log.Printf("Error deactivating check-in %d: %v", record.ID, err)
			continue
		}
		log.Printf("Auto checkout: user %d at spot %d (check-in %d)", record.UserID, record.SpotID, record.ID)

		s.pool.Dispatch(notification.Event{
			Kind:     notification.EventExpired,
			SpotID:   record.SpotID,
			SpotName: s.spotName(ctx, record.SpotID),
			UserID:   record.UserID,
		})
	}
}

// promptPlanned handles planned records whose promised arrival time has
// passed: the owner gets a confirm-or-cancel prompt and the record moves to
// the awaiting-confirmation state with a fresh grace expiry. The record is
// not deleted yet, so the prompt's buttons keep acting on a live id.
func (s *Service) promptPlanned(ctx context.Context, now time.Time) {
	overdue, err := s.store.ExpiredPlanned(ctx, now)
	if err != nil {
		log.Printf("Error scanning overdue planned check-ins: %v", err)
		return
	}

	graceUntil := now.Add(s.cfg.PlannedGrace)
	for _, record := range overdue {
		spot, err := s.store.GetSpot(ctx, record.SpotID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Ledger integrity violation; drop the orphan.
				log.Printf("Spot %d missing for check-in %d, deleting orphaned record", record.SpotID, record.ID)
				if err := s.store.DeleteCheckIn(ctx, record.ID); err != nil {
					log.Printf("Error deleting orphaned check-in %d: %v", record.ID, err)
				}
				continue
			}
			log.Printf("Error fetching spot %d for check-in %d: %v", record.SpotID, record.ID, err)
			continue
		}

		if err := s.store.MarkAwaiting(ctx, record.ID, graceUntil); err != nil {
			log.Printf("Error marking check-in %d awaiting confirmation: %v", record.ID, err)
			continue
		}
		log.Printf("Arrival confirmation requested: user %d at spot %d (check-in %d, grace until %s)",
			record.UserID, record.SpotID, record.ID, graceUntil.Format(time.RFC3339))

		ev := notification.Event{
			Kind:     notification.EventConfirmPrompt,
			SpotID:   record.SpotID,
			SpotName: spot.Name,
			UserID:   record.UserID,
		}
		if record.ArrivalAt != nil {
			ev.ArrivalAt = *record.ArrivalAt
		}
		s.pool.Dispatch(ev)
	}
}

// sweepAwaiting deletes records whose confirmation grace has also passed
// without the user acting. Deleting an already-deleted record is a no-op, so
// racing a user's cancel is harmless.
func (s *Service) sweepAwaiting(ctx context.Context, now time.Time) {
	stale, err := s.store.ExpiredAwaiting(ctx, now)
	if err != nil {
		log.Printf("Error scanning stale awaiting check-ins: %v", err)
		return
	}

	for _, record := range stale {
		if err := s.store.DeleteCheckIn(ctx, record.ID); err != nil {
			log.Printf("Error deleting unconfirmed check-in %d: %v", record.ID, err)
			continue
		}
		log.Printf("Unconfirmed arrival removed: user %d at spot %d (check-in %d)", record.UserID, record.SpotID, record.ID)
	}
}

func (s *Service) spotName(ctx context.Context, spotID int64) string {
	spot, err := s.store.GetSpot(ctx, spotID)
	if err != nil {
		log.Printf("Error fetching spot %d: %v", spotID, err)
		return "unknown spot"
	}
	return spot.Name
}
