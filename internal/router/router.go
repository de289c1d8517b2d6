package router

import (
	"net/http"

	"tiketi/config"
	"tiketi/internal/handler"
	"tiketi/internal/middleware"
	"tiketi/internal/service"
	"tiketi/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(cfg *config.Config, svc *service.CheckoutService, hub *ws.Hub) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger(); checkout transitions are logged by the controllers.

	checkoutHandler := handler.NewCheckoutHandler(svc)
	submitLimiter := middleware.NewKeyedRateLimiter(cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.Burst)

	authMw := middleware.AuthRequired(&cfg.JWT)
	instanceMw := middleware.CheckoutInstance()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": svc.ActiveCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		co := api.Group("/checkout")
		co.Use(authMw, instanceMw)
		{
			co.POST("", middleware.RateLimit(submitLimiter), checkoutHandler.Submit)
			co.GET("", checkoutHandler.Get)
			co.POST("/cancel", checkoutHandler.Cancel)
			co.DELETE("", checkoutHandler.Release)
			co.GET("/history", checkoutHandler.History)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.StaffOnly())
		{
			admin.GET("/checkouts", checkoutHandler.Recent)
		}
	}

	r.GET("/ws/checkout", ws.UpgradeCheckoutWS(&cfg.JWT, cfg.Server.AllowedOrigins, hub, svc.InitialEvent))
	return r
}
