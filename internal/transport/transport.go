package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/smartblood/internal/service"
	"github.com/ds124wfegd/smartblood/internal/transport/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the HTTP handlers built on the service layer.
type Handlers struct {
	Profiles      *ProfileHandler
	Requests      *RequestHandler
	DonorRequests *DonorRequestHandler
	Notifications *NotificationHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Profiles:      NewProfileHandler(services.Profiles, services.Matcher),
		Requests:      NewRequestHandler(services.Requests, services.Lifecycle, services.Fanout),
		DonorRequests: NewDonorRequestHandler(services.DonorRequests, services.Lifecycle),
		Notifications: NewNotificationHandler(services.Notifications),
	}
}

func InitRoutes(h *Handlers, gatherer prometheus.Gatherer, timeout time.Duration) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Identity())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(timeout))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		profiles := api.Group("/profiles")
		{
			profiles.PUT("/me", middleware.RequireProfile(), h.Profiles.UpsertMe)
			profiles.GET("/:id", h.Profiles.GetProfile)
		}

		donors := api.Group("/donors")
		{
			donors.GET("", h.Profiles.FindDonors)
			donors.GET("/leaderboard", h.Profiles.Leaderboard)
		}

		requests := api.Group("/requests")
		{
			requests.POST("", middleware.RequireProfile(), h.Requests.Submit)
			requests.GET("", h.Requests.List)
			requests.GET("/:id", h.Requests.Get)
			requests.POST("/:id/status", middleware.RequireProfile(), h.Requests.Transition)
			requests.POST("/:id/fanout", h.Requests.FanOut)
		}

		donorRequests := api.Group("/donor-requests", middleware.RequireProfile())
		{
			donorRequests.POST("", h.DonorRequests.Create)
			donorRequests.GET("/incoming", h.DonorRequests.Incoming)
			donorRequests.GET("/sent", h.DonorRequests.Sent)
			donorRequests.POST("/:id/status", h.DonorRequests.Transition)
		}

		notifications := api.Group("/notifications", middleware.RequireProfile())
		{
			notifications.GET("", h.Notifications.List)
			notifications.POST("/:id/read", h.Notifications.MarkRead)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/requests", h.Requests.SubmitAdmin)
			admin.GET("/flagged", h.Requests.Flagged)
			admin.GET("/stats", h.Requests.Stats)
		}
	}

	return router
}
