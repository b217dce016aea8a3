package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/botsdv/backend/internal/config"
	"github.com/botsdv/backend/internal/http/handlers"
	"github.com/botsdv/backend/internal/http/middleware"
	"github.com/botsdv/backend/internal/metrics"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/service"
	"github.com/botsdv/backend/internal/store"

	_ "github.com/botsdv/backend/docs"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Store      store.Store
	Tickets    *service.TicketService
	Engine     *service.AssignmentEngine
	Users      *service.UserService
	Dashboards *service.DashboardAggregator
	Exporter   *service.Exporter
	Hub        *realtime.Hub
}

func Router(cfg config.Config, svc Services, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader, middleware.BotKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins()
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      svc.Store,
		Tickets:    svc.Tickets,
		Engine:     svc.Engine,
		Users:      svc.Users,
		Dashboards: svc.Dashboards,
		Exporter:   svc.Exporter,
		Hub:        svc.Hub,
		Validator:  validator.New(),
		Logger:     logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/notifications/ws", h.Notifications)

	timed := api.Group("", middleware.Timeout(cfg.RequestTimeout))
	timed.POST("/auth/register", h.Register)

	bot := timed.Group("", middleware.BotKey(cfg.BotAPIKey))
	{
		bot.POST("/webhook/telegram", h.TelegramWebhook)
		bot.POST("/bot/comments", h.BotComment)
		bot.GET("/comments/pending-telegram", h.PendingTelegram)
		bot.PUT("/comments/:id/mark-sent", h.MarkCommentSent)
	}

	authed := timed.Group("", middleware.Identity(svc.Store, logger))
	{
		authed.GET("/users/agents", h.Agents)
		authed.POST("/tickets", h.CreateTicket)
		authed.GET("/tickets", h.ListTickets)
		authed.GET("/tickets/open/available", h.AvailableTickets)
		authed.GET("/tickets/years", h.TicketYears)
		authed.GET("/tickets/categories", h.TicketCategories)
		authed.GET("/tickets/unread-replies", h.UnreadReplies)
		authed.GET("/tickets/:id", h.GetTicket)
		authed.GET("/tickets/:id/comments", h.ListComments)
		authed.POST("/tickets/:id/comments", h.AddComment)
		authed.GET("/statistics/agent-dashboard/:agent_id", h.AgentDashboard)
		authed.GET("/statistics/agent/:agent_id", h.AgentStats)
	}

	staff := authed.Group("", middleware.RequireRole(models.RoleAgent, models.RoleAdmin))
	{
		staff.PUT("/tickets/:id", h.UpdateTicket)
		staff.POST("/tickets/:id/claim", h.ClaimTicket)
		staff.POST("/tickets/:id/complete", h.CompleteTicket)
	}

	agents := authed.Group("", middleware.RequireRole(models.RoleAgent))
	agents.PUT("/tickets/:id/mark-read", h.MarkCommentsRead)

	admin := authed.Group("", middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users/pending", h.PendingUsers)
		admin.PUT("/users/:id/approve", h.ApproveUser)
		admin.DELETE("/users/:id", h.DeleteUser)
		admin.DELETE("/tickets/:id", h.DeleteTicket)
		admin.GET("/statistics/admin-dashboard", h.AdminDashboard)
		admin.GET("/performance/table-data", h.PerformanceTable)
		admin.GET("/performance/by-agent", h.PerformanceByAgent)
		admin.GET("/performance/by-product", h.PerformanceByProduct)
		admin.GET("/export/tickets", h.ExportTickets)
		admin.GET("/export/performance", h.ExportPerformance)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
