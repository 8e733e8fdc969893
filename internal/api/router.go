package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"bagmachine-remote/config"
	"bagmachine-remote/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(h.log))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.AllowedOrigins))
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(cacheTTL, 2*cacheTTL), cacheTTL)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Operator controls are not rate limited. Duplicate dispatch of an action
	// is refused by the session itself.
	{
		api.GET("/session", h.GetSession)
		api.GET("/session/events", h.Events)
		api.POST("/session/refresh", h.Refresh)

		api.POST("/bag-length/adjust", h.AdjustBagLength)
		api.POST("/bag-length/commit", h.CommitBagLength)
		api.POST("/speed/adjust", h.AdjustSpeed)
		api.POST("/speed/commit", h.CommitSpeed)

		api.POST("/machine/start", h.StartMachine)
		api.POST("/machine/stop", h.StopMachine)
	}

	limited := api.Group("")
	limited.Use(rateLimiter)
	{
		limited.GET("/journal", caching, h.GetJournal)

		limited.GET("/subscriptions", h.GetSubscription)
		limited.PUT("/subscriptions", h.PutSubscription)
		limited.DELETE("/subscriptions", h.DeleteSubscription)
		limited.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
