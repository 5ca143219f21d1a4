package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spot-presence-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// User directory.
	UpsertUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, userID int64) (*model.User, error)

	// Spot registry.
	CreateSpot(ctx context.Context, name string, lat, lon float64, creatorID int64) (int64, error)
	GetSpot(ctx context.Context, spotID int64) (*model.Spot, error)
	ListSpots(ctx context.Context) ([]model.Spot, error)
	RenameSpot(ctx context.Context, spotID int64, newName string) error
	RelocateSpot(ctx context.Context, spotID int64, lat, lon float64) error
	DeleteSpot(ctx context.Context, spotID int64) error

	// Check-in ledger. Every mutating operation runs in one transaction.
	CheckIn(ctx context.Context, now time.Time, userID, spotID int64, kind model.CheckInKind, durationHours *float64, arrivalAt *time.Time) (int64, error)
	ConfirmArrival(ctx context.Context, now time.Time, checkinID, userID int64, durationHours float64) error
	CheckOut(ctx context.Context, checkinID int64) error
	CancelPlanned(ctx context.Context, checkinID int64) error
	GetActiveCheckIn(ctx context.Context, userID int64) (*model.CheckIn, error)
	ListCheckInsForUser(ctx context.Context, userID int64) ([]model.CheckIn, error)

	// Reconciler support.
	ExpiredPresent(ctx context.Context, now time.Time) ([]model.CheckIn, error)
	ExpiredPlanned(ctx context.Context, now time.Time) ([]model.CheckIn, error)
	ExpiredAwaiting(ctx context.Context, now time.Time) ([]model.CheckIn, error)
	Deactivate(ctx context.Context, checkinID int64) error
	MarkAwaiting(ctx context.Context, checkinID int64, graceUntil time.Time) error
	DeleteCheckIn(ctx context.Context, checkinID int64) error

	// Favorites.
	AddFavorite(ctx context.Context, userID, spotID int64) error
	RemoveFavorite(ctx context.Context, userID, spotID int64) error
	ListFavorites(ctx context.Context, userID int64) ([]model.Spot, error)
	FavoriteSubscribers(ctx context.Context, spotID, excludeUserID int64) ([]model.User, error)

	// Occupancy read side.
	SpotOccupancy(ctx context.Context, spotID int64) (*Occupancy, error)

	// Push subscriptions.
	UpsertPushSubscription(ctx context.Context, sub model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// --- User directory ---

// UpsertUser creates or overwrites a user profile. The timezone is validated
// here so that rendering never has to deal with unknown zones; an invalid
// zone degrades to UTC with a warning rather than failing the upsert.
func (s *gormStore) UpsertUser(ctx context.Context, user model.User) error {
	if user.Timezone == "" {
		user.Timezone = "UTC"
	} else if _, err := time.LoadLocation(user.Timezone); err != nil {
		log.Printf("Warning: unknown timezone %q for user %d, falling back to UTC", user.Timezone, user.ID)
		user.Timezone = "UTC"
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "is_admin", "timezone", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
	}
	return nil
}

func (s *gormStore) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}
	return &user, nil
}

// --- Spot registry ---

func (s *gormStore) CreateSpot(ctx context.Context, name string, lat, lon float64, creatorID int64) (int64, error) {
	spot := model.Spot{Name: name, Latitude: lat, Longitude: lon, CreatedBy: creatorID}
	if err := s.db.WithContext(ctx).Create(&spot).Error; err != nil {
		return 0, fmt.Errorf("failed to create spot %q: %w", name, err)
	}
	return spot.ID, nil
}

func (s *gormStore) GetSpot(ctx context.Context, spotID int64) (*model.Spot, error) {
	var spot model.Spot
	if err := s.db.WithContext(ctx).First(&spot, spotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch spot %d: %w", spotID, err)
	}
	return &spot, nil
}

func (s *gormStore) ListSpots(ctx context.Context) ([]model.Spot, error) {
	var spots []model.Spot
	if err := s.db.WithContext(ctx).Order("name").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	return spots, nil
}

func (s *gormStore) RenameSpot(ctx context.Context, spotID int64, newName string) error {
	res := s.db.WithContext(ctx).Model(&model.Spot{}).Where("id = ?", spotID).Update("name", newName)
	if res.Error != nil {
		return fmt.Errorf("failed to rename spot %d: %w", spotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
	}
	return nil
}

func (s *gormStore) RelocateSpot(ctx context.Context, spotID int64, lat, lon float64) error {
	res := s.db.WithContext(ctx).Model(&model.Spot{}).Where("id = ?", spotID).
		Updates(map[string]any{"latitude": lat, "longitude": lon})
	if res.Error != nil {
		return fmt.Errorf("failed to relocate spot %d: %w", spotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
	}
	return nil
}

// DeleteSpot removes the spot and every check-in referencing it. The cascade
// is mandatory: an orphaned check-in pointing at a missing spot violates the
// ledger's integrity. Favorites are deliberately left alone; a dangling
// favorite simply never matches on fan-out again.
func (s *gormStore) DeleteSpot(ctx context.Context, spotID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("spot_id = ?", spotID).Delete(&model.CheckIn{}).Error; err != nil {
			return fmt.Errorf("failed to delete check-ins for spot %d: %w", spotID, err)
		}
		res := tx.Delete(&model.Spot{}, spotID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete spot %d: %w", spotID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
		}
		return nil
	})
}

// --- Check-in ledger ---

// CheckIn is the single entry point creating active ledger state. It
// atomically deactivates the user's current active record, if any, and
// inserts the new one, so "deactivate old, insert new" can never be observed
// half-applied.
func (s *gormStore) CheckIn(ctx context.Context, now time.Time, userID, spotID int64, kind model.CheckInKind, durationHours *float64, arrivalAt *time.Time) (int64, error) {
	now = now.UTC()

	record := model.CheckIn{
		UserID:    userID,
		SpotID:    spotID,
		Kind:      kind,
		Active:    true,
		CreatedAt: now,
	}

	switch kind {
	case model.KindPresent:
		if arrivalAt != nil {
			return 0, fmt.Errorf("present check-in must not carry an arrival time: %w", ErrInvalidState)
		}
		if durationHours != nil {
			if *durationHours <= 0 {
				return 0, fmt.Errorf("duration must be positive: %w", ErrInvalidState)
			}
			record.DurationHours = durationHours
			expires := now.Add(hoursToDuration(*durationHours))
			record.ExpiresAt = &expires
		}
	case model.KindPlanned:
		if arrivalAt == nil {
			return 0, fmt.Errorf("planned check-in requires an arrival time: %w", ErrInvalidState)
		}
		if durationHours != nil {
			return 0, fmt.Errorf("planned check-in must not carry a duration: %w", ErrInvalidState)
		}
		arrival := arrivalAt.UTC()
		if !arrival.After(now) {
			return 0, fmt.Errorf("arrival time is in the past: %w", ErrInvalidState)
		}
		record.ArrivalAt = &arrival
		record.ExpiresAt = &arrival
	default:
		return 0, fmt.Errorf("unknown check-in kind %d: %w", kind, ErrInvalidState)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var spot model.Spot
		if err := tx.Select("id").First(&spot, spotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
			}
			return fmt.Errorf("failed to fetch spot %d: %w", spotID, err)
		}

		// Last action wins: any prior active record is closed unconditionally.
		if err := tx.Model(&model.CheckIn{}).
			Where("user_id = ? AND active = ?", userID, true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous check-in for user %d: %w", userID, err)
		}

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create check-in for user %d: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

// ConfirmArrival rewrites a planned (or awaiting-confirmation) record in
// place into a present one. The record keeps its identifier; no new row is
// created.
func (s *gormStore) ConfirmArrival(ctx context.Context, now time.Time, checkinID, userID int64, durationHours float64) error {
	if durationHours <= 0 {
		return fmt.Errorf("duration must be positive: %w", ErrInvalidState)
	}
	now = now.UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record model.CheckIn
		if err := tx.First(&record, checkinID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("check-in %d: %w", checkinID, ErrNotFound)
			}
			return fmt.Errorf("failed to fetch check-in %d: %w", checkinID, err)
		}
		if record.UserID != userID {
			return fmt.Errorf("check-in %d does not belong to user %d: %w", checkinID, userID, ErrInvalidState)
		}
		if !record.Pending() || !record.Active {
			return fmt.Errorf("check-in %d is not awaiting arrival: %w", checkinID, ErrInvalidState)
		}

		expires := now.Add(hoursToDuration(durationHours))
		updates := map[string]any{
			"kind":           model.KindPresent,
			"duration_hours": durationHours,
			"arrival_at":     nil,
			"expires_at":     expires,
		}
		if err := tx.Model(&record).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to confirm arrival for check-in %d: %w", checkinID, err)
		}
		return nil
	})
}

// CheckOut deactivates a record. Checking out an already-inactive or missing
// record is a no-op, not an error.
func (s *gormStore) CheckOut(ctx context.Context, checkinID int64) error {
	err := s.db.WithContext(ctx).Model(&model.CheckIn{}).
		Where("id = ?", checkinID).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("failed to check out check-in %d: %w", checkinID, err)
	}
	return nil
}

// CancelPlanned deletes a planned or awaiting record entirely. Records of any
// other kind are left untouched.
func (s *gormStore) CancelPlanned(ctx context.Context, checkinID int64) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND kind IN ?", checkinID, []model.CheckInKind{model.KindPlanned, model.KindAwaiting}).
		Delete(&model.CheckIn{}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel planned check-in %d: %w", checkinID, err)
	}
	return nil
}

func (s *gormStore) GetActiveCheckIn(ctx context.Context, userID int64) (*model.CheckIn, error) {
	var record model.CheckIn
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch active check-in for user %d: %w", userID, err)
	}
	return &record, nil
}

func (s *gormStore) ListCheckInsForUser(ctx context.Context, userID int64) ([]model.CheckIn, error) {
	var records []model.CheckIn
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins for user %d: %w", userID, err)
	}
	return records, nil
}

// --- Reconciler support ---

func (s *gormStore) expiredByKind(ctx context.Context, kind model.CheckInKind, now time.Time) ([]model.CheckIn, error) {
	var records []model.CheckIn
	err := s.db.WithContext(ctx).
		Where("kind = ? AND active = ? AND expires_at IS NOT NULL AND expires_at < ?", kind, true, now.UTC()).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired records of kind %d: %w", kind, err)
	}
	return records, nil
}

func (s *gormStore) ExpiredPresent(ctx context.Context, now time.Time) ([]model.CheckIn, error) {
	return s.expiredByKind(ctx, model.KindPresent, now)
}

func (s *gormStore) ExpiredPlanned(ctx context.Context, now time.Time) ([]model.CheckIn, error) {
	return s.expiredByKind(ctx, model.KindPlanned, now)
}

func (s *gormStore) ExpiredAwaiting(ctx context.Context, now time.Time) ([]model.CheckIn, error) {
	return s.expiredByKind(ctx, model.KindAwaiting, now)
}

// Deactivate is the reconciler's idempotent expiry write.
func (s *gormStore) Deactivate(ctx context.Context, checkinID int64) error {
	err := s.db.WithContext(ctx).Model(&model.CheckIn{}).
		Where("id = ?", checkinID).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate check-in %d: %w", checkinID, err)
	}
	return nil
}

// MarkAwaiting moves a planned record into the awaiting-confirmation state
// with a fresh expiry. The kind guard makes the write a no-op if the user
// confirmed or re-checked-in in the same instant; whichever write commits
// last wins.
func (s *gormStore) MarkAwaiting(ctx context.Context, checkinID int64, graceUntil time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.CheckIn{}).
		Where("id = ? AND kind = ?", checkinID, model.KindPlanned).
		Updates(map[string]any{
			"kind":       model.KindAwaiting,
			"expires_at": graceUntil.UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark check-in %d awaiting confirmation: %w", checkinID, err)
	}
	return nil
}

// DeleteCheckIn removes a record outright; deleting an already-deleted
// record is a no-op.
func (s *gormStore) DeleteCheckIn(ctx context.Context, checkinID int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.CheckIn{}, checkinID).Error; err != nil {
		return fmt.Errorf("failed to delete check-in %d: %w", checkinID, err)
	}
	return nil
}

// --- Favorites ---

func (s *gormStore) AddFavorite(ctx context.Context, userID, spotID int64) error {
	var spot model.Spot
	if err := s.db.WithContext(ctx).Select("id").First(&spot, spotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("spot %d: %w", spotID, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch spot %d: %w", spotID, err)
	}

	fav := model.Favorite{UserID: userID, SpotID: spotID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fav).Error
	if err != nil {
		return fmt.Errorf("failed to add favorite (%d, %d): %w", userID, spotID, err)
	}
	return nil
}

func (s *gormStore) RemoveFavorite(ctx context.Context, userID, spotID int64) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND spot_id = ?", userID, spotID).
		Delete(&model.Favorite{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove favorite (%d, %d): %w", userID, spotID, err)
	}
	return nil
}

func (s *gormStore) ListFavorites(ctx context.Context, userID int64) ([]model.Spot, error) {
	var spots []model.Spot
	err := s.db.WithContext(ctx).
		Joins("JOIN favorites ON favorites.spot_id = spots.id").
		Where("favorites.user_id = ?", userID).
		Order("spots.name").
		Find(&spots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites for user %d: %w", userID, err)
	}
	return spots, nil
}

// FavoriteSubscribers returns every user who favorited the spot except the
// triggering user, with profiles loaded so the caller can localize times.
func (s *gormStore) FavoriteSubscribers(ctx context.Context, spotID, excludeUserID int64) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Joins("JOIN favorites ON favorites.user_id = users.id").
		Where("favorites.spot_id = ? AND users.id <> ?", spotID, excludeUserID).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscribers for spot %d: %w", spotID, err)
	}
	return users, nil
}

// --- Occupancy ---

// SpotOccupancy joins active check-ins with user profiles, partitioned by
// kind. Awaiting-confirmation records still count as planned arrivals.
func (s *gormStore) SpotOccupancy(ctx context.Context, spotID int64) (*Occupancy, error) {
	type row struct {
		UserID    int64
		FirstName string
		Username  string
		Kind      model.CheckInKind
		ArrivalAt *time.Time
	}

	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.CheckIn{}).
		Select("check_ins.user_id, users.first_name, users.username, check_ins.kind, check_ins.arrival_at").
		Joins("JOIN users ON users.id = check_ins.user_id").
		Where("check_ins.spot_id = ? AND check_ins.active = ?", spotID, true).
		Order("check_ins.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query occupancy for spot %d: %w", spotID, err)
	}

	occ := &Occupancy{SpotID: spotID, Present: []UserSummary{}, Planned: []PlannedArrival{}}
	for _, r := range rows {
		summary := UserSummary{UserID: r.UserID, FirstName: r.FirstName, Username: r.Username}
		if r.Kind == model.KindPresent {
			occ.Present = append(occ.Present, summary)
			continue
		}
		arrival := time.Time{}
		if r.ArrivalAt != nil {
			arrival = r.ArrivalAt.UTC()
		}
		occ.Planned = append(occ.Planned, PlannedArrival{UserSummary: summary, ArrivalAt: arrival})
	}
	occ.PresentCount = len(occ.Present)
	return occ, nil
}

// --- Push subscriptions ---

func (s *gormStore) UpsertPushSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

// hoursToDuration converts a fractional hour count without losing precision
// on the sub-hour part.
func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
