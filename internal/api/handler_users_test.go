package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-presence-backend/internal/model"
)

func TestPostUser(t *testing.T) {
	router, s, _ := newTestRouter(t)

	w := performRequest(router, http.MethodPost, "/api/users", map[string]any{
		"id":        42,
		"firstName": "Anna",
		"username":  "anna",
		"timezone":  "Europe/Kaliningrad",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	user, err := s.GetUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Anna", user.FirstName)
	assert.Equal(t, "Europe/Kaliningrad", user.Timezone)

	// Re-posting overwrites the profile.
	w = performRequest(router, http.MethodPost, "/api/users", map[string]any{
		"id":        42,
		"firstName": "Anya",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	user, err = s.GetUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Anya", user.FirstName)

	w = performRequest(router, http.MethodPost, "/api/users", map[string]any{"id": 43})
	assert.Equal(t, http.StatusBadRequest, w.Code, "firstName is required")
}

func TestGetUser(t *testing.T) {
	router, s, _ := newTestRouter(t)
	seedUser(t, s, 1, "Anna", false)

	w := performRequest(router, http.MethodGet, "/api/users/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var user model.User
	decodeJSON(t, w, &user)
	assert.Equal(t, "Anna", user.FirstName)

	w = performRequest(router, http.MethodGet, "/api/users/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(router, http.MethodGet, "/api/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserCheckIns(t *testing.T) {
	router, s, _ := newTestRouter(t)
	seedUser(t, s, 1, "Anna", false)
	spotID := seedSpot(t, s, "North Beach", 54.96, 20.47)

	first := seedPresent(t, s, 1, spotID, 2)
	require.NoError(t, s.CheckOut(context.Background(), first))
	seedPresent(t, s, 1, spotID, 3.5)

	w := performRequest(router, http.MethodGet, "/api/users/1/checkins", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		CheckIns   []model.CheckIn `json:"checkins"`
		TotalHours float64         `json:"totalHours"`
	}
	decodeJSON(t, w, &resp)
	assert.Len(t, resp.CheckIns, 2)
	assert.Equal(t, 5.5, resp.TotalHours)

	// An unknown user just has an empty history.
	w = performRequest(router, http.MethodGet, "/api/users/9999/checkins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &resp)
	assert.Empty(t, resp.CheckIns)
	assert.Zero(t, resp.TotalHours)
}

func TestGetActiveCheckIn(t *testing.T) {
	router, s, _ := newTestRouter(t)
	seedUser(t, s, 1, "Anna", false)
	spotID := seedSpot(t, s, "North Beach", 54.96, 20.47)

	w := performRequest(router, http.MethodGet, "/api/users/1/checkins/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no active check-in")

	id := seedPlanned(t, s, 1, spotID, time.Now().UTC().Add(time.Hour))

	w = performRequest(router, http.MethodGet, "/api/users/1/checkins/active", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var record model.CheckIn
	decodeJSON(t, w, &record)
	assert.Equal(t, id, record.ID)
	assert.Equal(t, model.KindPlanned, record.Kind)
}

func TestFavoritesEndpoints(t *testing.T) {
	router, s, _ := newTestRouter(t)
	seedUser(t, s, 1, "Anna", false)
	spotID := seedSpot(t, s, "North Beach", 54.96, 20.47)

	w := performRequest(router, http.MethodPut, fmt.Sprintf("/api/users/1/favorites/%d", spotID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Favoriting an unknown spot fails.
	w = performRequest(router, http.MethodPut, "/api/users/1/favorites/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(router, http.MethodGet, "/api/users/1/favorites", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var spots []model.Spot
	decodeJSON(t, w, &spots)
	require.Len(t, spots, 1)
	assert.Equal(t, spotID, spots[0].ID)

	w = performRequest(router, http.MethodDelete, fmt.Sprintf("/api/users/1/favorites/%d", spotID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(router, http.MethodGet, "/api/users/1/favorites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &spots)
	assert.Empty(t, spots)
}
