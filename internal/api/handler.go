package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"spot-presence-backend/internal/notification"
	"spot-presence-backend/internal/store"
	"spot-presence-backend/internal/weather"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	pool    *notification.Pool
	weather *weather.Client
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, pool *notification.Pool, w *weather.Client, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		pool:    pool,
		weather: w,
		webpush: webpushOptions,
	}
}

// writeStoreError maps the store's error taxonomy onto HTTP responses.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session expired, please restart"})
	default:
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error, please retry"})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
