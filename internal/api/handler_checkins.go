package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spot-presence-backend/internal/model"
	"spot-presence-backend/internal/notification"
)

type checkInRequest struct {
	UserID        int64    `json:"userId" binding:"required"`
	SpotID        int64    `json:"spotId" binding:"required"`
	Kind          int      `json:"kind" binding:"required"`
	DurationHours *float64 `json:"durationHours"`
	ArrivalAt     *string  `json:"arrivalAt"` // RFC3339
	// Timezone, when present, opportunistically refreshes the user's stored
	// timezone preference.
	Timezone string `json:"timezone"`
}

// PostCheckIn handles POST /api/checkins: the single mutating entry point
// for both "arrive now" and "plan to arrive" actions.
func (h *Handler) PostCheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := model.CheckInKind(req.Kind)
	if kind != model.KindPresent && kind != model.KindPlanned {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be 1 (present) or 2 (planned)"})
		return
	}

	var arrivalAt *time.Time
	if req.ArrivalAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ArrivalAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "arrivalAt must be RFC3339"})
			return
		}
		utc := parsed.UTC()
		arrivalAt = &utc
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUser(ctx, req.UserID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	if req.Timezone != "" && req.Timezone != user.Timezone {
		user.Timezone = req.Timezone
		if err := h.store.UpsertUser(ctx, *user); err != nil {
			log.Printf("Warning: failed to refresh timezone for user %d: %v", user.ID, err)
		}
	}

	now := time.Now().UTC()
	id, err := h.store.CheckIn(ctx, now, req.UserID, req.SpotID, kind, req.DurationHours, arrivalAt)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	// Fan out to the spot's favorites. Delivery is advisory; the check-in is
	// already committed.
	if spot, err := h.store.GetSpot(ctx, req.SpotID); err != nil {
		log.Printf("Warning: spot %d missing after check-in %d: %v", req.SpotID, id, err)
	} else {
		ev := notification.Event{
			SpotID:   spot.ID,
			SpotName: spot.Name,
			UserID:   user.ID,
			UserName: user.DisplayName(),
		}
		if kind == model.KindPresent {
			ev.Kind = notification.EventCheckedIn
		} else {
			ev.Kind = notification.EventPlannedArrival
			ev.ArrivalAt = *arrivalAt
		}
		h.pool.Dispatch(ev)
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type confirmArrivalRequest struct {
	UserID        int64   `json:"userId" binding:"required"`
	DurationHours float64 `json:"durationHours" binding:"required"`
}

// PostConfirmArrival handles POST /api/checkins/{checkin_id}/confirm. A
// record the reconciler already swept away yields 404; the client renders
// that as "expired, please restart".
func (h *Handler) PostConfirmArrival(c *gin.Context) {
	checkinID, ok := pathID(c, "checkin_id")
	if !ok {
		return
	}

	var req confirmArrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	if err := h.store.ConfirmArrival(ctx, now, checkinID, req.UserID, req.DurationHours); err != nil {
		writeStoreError(c, err)
		return
	}

	// A confirmed arrival is a presence change worth fanning out.
	if record, err := h.store.GetActiveCheckIn(ctx, req.UserID); err == nil && record != nil && record.ID == checkinID {
		if user, err := h.store.GetUser(ctx, req.UserID); err == nil {
			if spot, err := h.store.GetSpot(ctx, record.SpotID); err == nil {
				h.pool.Dispatch(notification.Event{
					Kind:     notification.EventCheckedIn,
					SpotID:   spot.ID,
					SpotName: spot.Name,
					UserID:   user.ID,
					UserName: user.DisplayName(),
				})
			}
		}
	}

	c.Status(http.StatusNoContent)
}

// PostCheckOut handles POST /api/checkins/{checkin_id}/checkout. Idempotent.
func (h *Handler) PostCheckOut(c *gin.Context) {
	checkinID, ok := pathID(c, "checkin_id")
	if !ok {
		return
	}

	if err := h.store.CheckOut(c.Request.Context(), checkinID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteCheckIn handles DELETE /api/checkins/{checkin_id}: cancels a planned
// arrival. A no-op for present records.
func (h *Handler) DeleteCheckIn(c *gin.Context) {
	checkinID, ok := pathID(c, "checkin_id")
	if !ok {
		return
	}

	if err := h.store.CancelPlanned(c.Request.Context(), checkinID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
