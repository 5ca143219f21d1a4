package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"spot-presence-backend/config"
	"spot-presence-backend/internal/api"
	"spot-presence-backend/internal/db"
	"spot-presence-backend/internal/notification"
	"spot-presence-backend/internal/reconciler"
	"spot-presence-backend/internal/store"
)

// recordingMessenger captures delivered texts per user.
type recordingMessenger struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{sent: map[int64][]string{}}
}

func (m *recordingMessenger) Send(ctx context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[userID] = append(m.sent[userID], text)
	return nil
}

func (m *recordingMessenger) texts(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[userID]...)
}

// TestPresenceLifecycle walks one user through the full ledger lifecycle over
// the HTTP API: check in, expire, plan an arrival, get prompted, confirm, and
// verifies both the persisted state and the notifications at each step.
func TestPresenceLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	appStore := store.NewGormStore(gormDB)
	messenger := newRecordingMessenger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := notification.NewPool(2, appStore, messenger)
	pool.Start(ctx)

	reconcilerCfg := &config.ReconcilerConfig{
		Enabled:      true,
		Interval:     time.Minute,
		PlannedGrace: 30 * time.Minute,
	}
	svc := reconciler.NewService(reconcilerCfg, appStore, pool)

	serverCfg := &config.ServerConfig{
		Port:            8080,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 1,
	}
	router := api.NewRouter(serverCfg, appStore, pool, nil, &webpush.Options{VAPIDPublicKey: "pk"})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var raw []byte
		if body != nil {
			raw, _ = json.Marshal(body)
		}
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// Register two users; Boris watches the spot Anna uses.
	w := do(http.MethodPost, "/api/users", map[string]any{
		"id": 1, "firstName": "Anna", "username": "anna", "isAdmin": true, "timezone": "Europe/Kaliningrad",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = do(http.MethodPost, "/api/users", map[string]any{
		"id": 2, "firstName": "Boris", "timezone": "UTC",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(http.MethodPost, "/api/spots", map[string]any{
		"name": "North Beach", "latitude": 54.96, "longitude": 20.47, "creatorId": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	spotID := created.ID

	w = do(http.MethodPut, fmt.Sprintf("/api/users/2/favorites/%d", spotID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// --- Present check-in with a stated duration ---
	w = do(http.MethodPost, "/api/checkins", map[string]any{
		"userId": 1, "spotId": spotID, "kind": 1, "durationHours": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The favorite hears about it; the person checking in does not.
	require.Eventually(t, func() bool {
		return len(messenger.texts(2)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, messenger.texts(2)[0], "Anna")
	assert.Empty(t, messenger.texts(1))

	w = do(http.MethodGet, fmt.Sprintf("/api/spots/%d/occupancy", spotID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"presentCount":1`)

	// --- Expiry: the stated hour passes ---
	svc.RunOnce(ctx, time.Now().UTC().Add(2*time.Hour))

	require.Eventually(t, func() bool {
		return len(messenger.texts(1)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, messenger.texts(1)[0], "checked out automatically")

	w = do(http.MethodGet, "/api/users/1/checkins/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// --- Planned arrival ---
	arrival := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	w = do(http.MethodPost, "/api/checkins", map[string]any{
		"userId": 1, "spotId": spotID, "kind": 2, "arrivalAt": arrival.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	plannedID := created.ID

	require.Eventually(t, func() bool {
		return len(messenger.texts(2)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, messenger.texts(2)[1], "plans to arrive")

	// --- Arrival time passes: prompt, not delete ---
	promptAt := arrival.Add(time.Minute)
	svc.RunOnce(ctx, promptAt)

	require.Eventually(t, func() bool {
		return len(messenger.texts(1)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	prompt := messenger.texts(1)[1]
	assert.Contains(t, prompt, "confirm or cancel")
	// Rendered in Anna's timezone, UTC+2.
	assert.Contains(t, prompt, arrival.Add(2*time.Hour).Format("15:04"))

	w = do(http.MethodGet, "/api/users/1/checkins/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":3`)

	// --- Confirm within the grace period ---
	w = do(http.MethodPost, fmt.Sprintf("/api/checkins/%d/confirm", plannedID), map[string]any{
		"userId": 1, "durationHours": 2,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(http.MethodGet, "/api/users/1/checkins/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":1`)

	// A sweep after the grace period leaves the confirmed record alone.
	svc.RunOnce(ctx, promptAt.Add(31*time.Minute))
	w = do(http.MethodGet, "/api/users/1/checkins/active", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// --- History survives everything above ---
	w = do(http.MethodGet, "/api/users/1/checkins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		CheckIns   []json.RawMessage `json:"checkins"`
		TotalHours float64           `json:"totalHours"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.CheckIns, 2)
	assert.Equal(t, 3.0, history.TotalHours)

	// --- Admin deletes the spot; the ledger is cascaded ---
	w = do(http.MethodDelete, fmt.Sprintf("/api/spots/%d?actor_id=1", spotID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(http.MethodGet, "/api/users/1/checkins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Empty(t, history.CheckIns)
}
