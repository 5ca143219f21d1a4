package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"spot-presence-backend/config"
	"spot-presence-backend/internal/db"
	"spot-presence-backend/internal/model"
	"spot-presence-backend/internal/notification"
	"spot-presence-backend/internal/store"
)

// newTestRouter builds the full router over an in-memory SQLite store. The
// notification pool is never started, so dispatched events stay queued and
// tests can assert on them.
func newTestRouter(t *testing.T) (*gin.Engine, store.Store, *notification.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB)
	pool := notification.NewPool(1, s, nil)

	cfg := &config.ServerConfig{
		Port:            8080,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 60,
	}
	router := NewRouter(cfg, s, pool, nil, &webpush.Options{VAPIDPublicKey: "test-public-key"})
	return router, s, pool
}

func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func drainEvents(pool *notification.Pool) []notification.Event {
	var events []notification.Event
	for {
		select {
		case ev := <-pool.Jobs():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func seedUser(t *testing.T, s store.Store, id int64, name string, admin bool) {
	t.Helper()
	require.NoError(t, s.UpsertUser(context.Background(), model.User{
		ID:        id,
		FirstName: name,
		Timezone:  "UTC",
		IsAdmin:   admin,
	}))
}

func seedSpot(t *testing.T, s store.Store, name string, lat, lon float64) int64 {
	t.Helper()
	id, err := s.CreateSpot(context.Background(), name, lat, lon, 1)
	require.NoError(t, err)
	return id
}

func seedPresent(t *testing.T, s store.Store, userID, spotID int64, durationHours float64) int64 {
	t.Helper()
	id, err := s.CheckIn(context.Background(), time.Now().UTC(), userID, spotID, model.KindPresent, &durationHours, nil)
	require.NoError(t, err)
	return id
}

func seedPlanned(t *testing.T, s store.Store, userID, spotID int64, arrival time.Time) int64 {
	t.Helper()
	id, err := s.CheckIn(context.Background(), time.Now().UTC(), userID, spotID, model.KindPlanned, nil, &arrival)
	require.NoError(t, err)
	return id
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}
