package main

import (
	"time"

	"leadintake-service/internal/dealflow"
	"leadintake-service/internal/handler"
	"leadintake-service/internal/identity"
	"leadintake-service/internal/middleware"
	"leadintake-service/internal/store"
	"leadintake-service/internal/viewcache"
	"leadintake-service/pkg/config"
	"leadintake-service/pkg/database"
	"leadintake-service/pkg/logger"
	"leadintake-service/pkg/pipedrive"
	"leadintake-service/pkg/whatsapp"
	"leadintake-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	viewCacheWindow  = 5 * time.Second
	viewCacheMaxKeys = 10000
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting lead intake service...", zap.String("environment", cfg.Server.Env))

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize database and run migrations
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed",
		zap.String("db_host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.Name))
	db := database.GetDB()

	// Wire the intake workflow: stores, CRM gateway, notification channel
	crm := pipedrive.NewClient(&cfg.Pipedrive)
	notifier := whatsapp.NewClient(&cfg.WhatsApp, log)
	contacts := store.NewContactStore(db)
	deals := store.NewDealStore(db)
	resolver := identity.NewResolver(contacts, crm, log)
	flow := dealflow.New(deals, contacts, resolver, crm, notifier, log)

	views := viewcache.New(viewCacheWindow, viewCacheMaxKeys)
	handler.Init(flow, db, views)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Routes
	e.GET("/", handler.Hello)
	e.GET("/health", handler.HealthCheck)

	// Prometheus metrics endpoint
	e.GET("/metrics", prometheus.HandlerFunc())

	api := e.Group("/api")

	// Deal intake endpoints
	dealRoutes := api.Group("/deals")
	dealRoutes.POST("", handler.CreateDeals)
	dealRoutes.POST("/initialize", handler.InitializeDeal)
	dealRoutes.GET("", handler.ListDeals)
	dealRoutes.GET("/:id", handler.GetDeal)
	dealRoutes.PUT("/:id", handler.UpdateDeal)
	dealRoutes.PUT("/:id/details", handler.UpdateDealDetails)
	dealRoutes.DELETE("/:id", handler.DeleteDeal)
	dealRoutes.DELETE("/user/:name", handler.DeleteDealsByName)

	// Blog endpoints
	blog := api.Group("/blog")
	blog.POST("/categories", handler.CreateBlogCategory)
	blog.GET("/categories", handler.ListBlogCategories)
	blog.GET("/categories/:idOrSlug", handler.GetBlogCategory)
	blog.PUT("/categories/:id", handler.UpdateBlogCategory)
	blog.DELETE("/categories/:id", handler.DeleteBlogCategory)
	blog.POST("/posts", handler.CreateBlogPost)
	blog.GET("/posts", handler.ListBlogPosts)
	blog.GET("/posts/:slug", handler.GetBlogPostBySlug)
	blog.PUT("/posts/:id", handler.UpdateBlogPost)
	blog.DELETE("/posts/:id", handler.DeleteBlogPost)
	blog.POST("/posts/:slug/view", handler.TrackBlogPostView)

	// Page view tracking endpoints
	pageviews := api.Group("/page-views")
	pageviews.POST("", handler.TrackPageView)
	pageviews.GET("", handler.GetPageViewCounts)
	pageviews.GET("/entity/:type/:id", handler.GetEntityViewCounts)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
