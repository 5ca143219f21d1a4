package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spot-presence-backend/internal/model"
)

type upsertUserRequest struct {
	ID        int64  `json:"id" binding:"required"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"isAdmin"`
	Timezone  string `json:"timezone"`
}

// PostUser handles POST /api/users: idempotent create-or-overwrite of a
// profile, last write wins.
func (h *Handler) PostUser(c *gin.Context) {
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := model.User{
		ID:        req.ID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		IsAdmin:   req.IsAdmin,
		Timezone:  req.Timezone,
	}
	if err := h.store.UpsertUser(c.Request.Context(), user); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetUser handles GET /api/users/{user_id}.
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUserCheckIns handles GET /api/users/{user_id}/checkins: the full
// history, most recent first, plus the total-hours aggregate used by the
// profile view.
func (h *Handler) GetUserCheckIns(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	records, err := h.store.ListCheckInsForUser(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	var totalHours float64
	for _, record := range records {
		if record.DurationHours != nil {
			totalHours += *record.DurationHours
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"checkins":   records,
		"totalHours": totalHours,
	})
}

// GetActiveCheckIn handles GET /api/users/{user_id}/checkins/active.
func (h *Handler) GetActiveCheckIn(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	record, err := h.store.GetActiveCheckIn(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active check-in"})
		return
	}
	c.JSON(http.StatusOK, record)
}
