package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"spot-presence-backend/config"
	"spot-presence-backend/internal/mw"
	"spot-presence-backend/internal/notification"
	"spot-presence-backend/internal/store"
	"spot-presence-backend/internal/weather"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, pool *notification.Pool, w *weather.Client, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, pool, w, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Read-side responses are cached briefly; occupancy staleness within the
	// TTL is acceptable.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/users", handler.PostUser)
		api.GET("/users/:user_id", handler.GetUser)
		api.GET("/users/:user_id/checkins", handler.GetUserCheckIns)
		api.GET("/users/:user_id/checkins/active", handler.GetActiveCheckIn)
		api.GET("/users/:user_id/favorites", handler.GetFavorites)
		api.PUT("/users/:user_id/favorites/:spot_id", handler.PutFavorite)
		api.DELETE("/users/:user_id/favorites/:spot_id", handler.DeleteFavorite)

		api.POST("/checkins", handler.PostCheckIn)
		api.POST("/checkins/:checkin_id/confirm", handler.PostConfirmArrival)
		api.POST("/checkins/:checkin_id/checkout", handler.PostCheckOut)
		api.DELETE("/checkins/:checkin_id", handler.DeleteCheckIn)

		api.POST("/spots", handler.PostSpot)
		api.GET("/spots", caching, handler.GetSpots)
		api.GET("/spots/nearby", handler.GetNearbySpots)
		api.GET("/spots/:spot_id", handler.GetSpot)
		api.PATCH("/spots/:spot_id", handler.PatchSpot)
		api.DELETE("/spots/:spot_id", handler.DeleteSpot)
		api.GET("/spots/:spot_id/occupancy", handler.GetOccupancy)
		api.GET("/spots/:spot_id/forecast", caching, handler.GetForecast)

		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
