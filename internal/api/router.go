package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-access-backend/config"
	"parking-access-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, server config.ServerConfig, auth config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(h.log))

	limiter := mw.NewIPRateLimiter(rate.Limit(server.RateLimitPerSec), server.RateLimitBurst, 10*time.Minute)

	// Dashboard reads are cached briefly; reconciliation clears the cache.
	cacheStore := cache.New(server.StatsCacheTTL, 2*server.StatsCacheTTL)
	caching := mw.Cache(cacheStore, server.StatsCacheTTL)

	api := r.Group("/api")
	api.GET("/events/ws", h.GetLiveFeed)

	// Lane input opens gates, so only detector tokens may post it. It is not
	// rate limited: detectors post several frames a second.
	lanes := api.Group("/lanes/:lane")
	lanes.Use(mw.Authenticate(auth.JWTSecret), mw.RequireRole(mw.DetectorRoles...))
	{
		lanes.POST("/observations", h.PostObservations)
		lanes.POST("/frames", h.PostFrame)
	}

	dash := api.Group("")
	dash.Use(mw.RateLimiter(limiter))
	{
		dash.GET("/stats", caching, h.GetStats)
		dash.GET("/sessions", caching, h.GetSessions)
		dash.GET("/sessions/open", caching, h.GetOpenSessions)

		dash.POST("/sessions/reconcile",
			mw.Authenticate(auth.JWTSecret),
			mw.RequireRole(mw.OperatorRoles...),
			mw.Invalidate(cacheStore),
			h.ReconcileSession)

		dash.GET("/subscriptions", h.GetSubscription)
		dash.PUT("/subscriptions", h.PutSubscription)
		dash.DELETE("/subscriptions", h.DeleteSubscription)
		dash.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
