package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PutFavorite handles PUT /api/users/{user_id}/favorites/{spot_id}.
// Duplicate favorites are a no-op.
func (h *Handler) PutFavorite(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	if err := h.store.AddFavorite(c.Request.Context(), userID, spotID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteFavorite handles DELETE /api/users/{user_id}/favorites/{spot_id}.
func (h *Handler) DeleteFavorite(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	spotID, ok := pathID(c, "spot_id")
	if !ok {
		return
	}

	if err := h.store.RemoveFavorite(c.Request.Context(), userID, spotID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFavorites handles GET /api/users/{user_id}/favorites.
func (h *Handler) GetFavorites(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	spots, err := h.store.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, spots)
}
