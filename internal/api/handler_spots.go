package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"spot-presence-backend/internal/geo"
)

type createSpotRequest struct {
	Name      string  `json:"name" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	CreatorID int64   `json:"creatorId" binding:"required"`
}

// PostSpot handles POST /api/spots.
func (h *Handler) PostSpot(c *gin.Context) {
	var req createSpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.store.CreateSpot(c.Request.Context(), req.Name, req.Latitude, req.Longitude, req.CreatorID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetSpots handles GET /api/spots.
func (h *Handler) GetSpots(c *gin.Context) {
	spots, err := h.store.ListSpots(c.Request.Context())
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, spots)
}

// GetSpot handles GET /api/spots/{spot_id}.
func (h *Handler) GetSpot(c *gin.Context) {
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	spot, err := h.store.GetSpot(c.Request.Context(), spotID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

type updateSpotRequest struct {
	ActorID   int64    `json:"actorId" binding:"required"`
	Name      *string  `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PatchSpot handles PATCH /api/spots/{spot_id}: rename and/or relocate.
// Admin only.
func (h *Handler) PatchSpot(c *gin.Context) {
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	var req updateSpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.requireAdmin(c, req.ActorID) {
		return
	}

	ctx := c.Request.Context()
	if req.Name != nil {
		if err := h.store.RenameSpot(ctx, spotID, *req.Name); err != nil {
			writeStoreError(c, err)
			return
		}
	}
	if req.Latitude != nil && req.Longitude != nil {
		if err := h.store.RelocateSpot(ctx, spotID, *req.Latitude, *req.Longitude); err != nil {
			writeStoreError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// DeleteSpot handles DELETE /api/spots/{spot_id}. Admin only; cascades to
// the spot's check-ins.
func (h *Handler) DeleteSpot(c *gin.Context) {
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	actorID, err := strconv.ParseInt(c.Query("actor_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id is required"})
		return
	}
	if !h.requireAdmin(c, actorID) {
		return
	}

	if err := h.store.DeleteSpot(c.Request.Context(), spotID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetOccupancy handles GET /api/spots/{spot_id}/occupancy: who is here and
// who is coming, with display names.
func (h *Handler) GetOccupancy(c *gin.Context) {
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetSpot(ctx, spotID); err != nil {
		writeStoreError(c, err)
		return
	}

	occ, err := h.store.SpotOccupancy(ctx, spotID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}

type nearbySpotResponse struct {
	geo.SpotDistance
	PresentCount int `json:"presentCount"`
	PlannedCount int `json:"plannedCount"`
}

// GetNearbySpots handles GET /api/spots/nearby?lat=&lon=&max_km=. Only spots
// with nonzero activity are returned, nearest first.
func (h *Handler) GetNearbySpots(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}
	maxKm := 5.0
	if raw := c.Query("max_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_km"})
			return
		}
		maxKm = parsed
	}

	ctx := c.Request.Context()
	spots, err := h.store.ListSpots(ctx)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	response := make([]nearbySpotResponse, 0)
	for _, sd := range geo.Nearby(spots, lat, lon, maxKm) {
		occ, err := h.store.SpotOccupancy(ctx, sd.Spot.ID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if occ.PresentCount == 0 && len(occ.Planned) == 0 {
			continue
		}
		response = append(response, nearbySpotResponse{
			SpotDistance: sd,
			PresentCount: occ.PresentCount,
			PlannedCount: len(occ.Planned),
		})
	}
	c.JSON(http.StatusOK, response)
}

// GetForecast handles GET /api/spots/{spot_id}/forecast. Weather is
// best-effort: upstream failures degrade to 503, never an internal error.
func (h *Handler) GetForecast(c *gin.Context) {
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	spot, err := h.store.GetSpot(ctx, spotID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	if h.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather data unavailable"})
		return
	}

	forecast, err := h.weather.Forecast(ctx, spot.Latitude, spot.Longitude)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather data unavailable"})
		return
	}
	c.JSON(http.StatusOK, forecast)
}

func (h *Handler) requireAdmin(c *gin.Context, actorID int64) bool {
	actor, err := h.store.GetUser(c.Request.Context(), actorID)
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	if !actor.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return false
	}
	return true
}
