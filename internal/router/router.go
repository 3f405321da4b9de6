package router

import (
	"fmt"
	"strings"

	"github.com/sitegrade/sitegrade/internal/cache"
	"github.com/sitegrade/sitegrade/internal/config"
	publichandlers "github.com/sitegrade/sitegrade/internal/http/handlers/public"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter builds the gin engine with all public routes.
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sg"
	}
	submitRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:submit", redisPrefix),
		WindowSeconds: cfg.Security.SubmitRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.SubmitRateLimit.MaxRequests,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	api := r.Group("/api")
	{
		audits := api.Group("/audits")
		{
			audits.POST("", RateLimitMiddleware(cache.Client(), submitRule, KeyByIP), publicHandler.CreateAudit)
			audits.GET("/:id", publicHandler.GetAudit)
			audits.POST("/:id/coupon", publicHandler.ApplyCoupon)
			audits.POST("/:id/lead", publicHandler.CaptureLead)
			audits.POST("/:id/order", publicHandler.CreateOrder)
			audits.POST("/:id/verify", publicHandler.VerifyPayment)
		}

		api.POST("/webhooks/payment", publicHandler.PaymentWebhook)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
