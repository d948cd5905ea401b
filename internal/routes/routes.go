package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/config"
	"github.com/example/freshcart/internal/handlers"
	"github.com/example/freshcart/internal/metrics"
	"github.com/example/freshcart/internal/middleware"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/storage"
	"github.com/example/freshcart/internal/utils"
)

const bodyLimit = 10 << 20

// Dependencies are the wired services the HTTP layer needs.
type Dependencies struct {
	DB        *gorm.DB
	Config    *config.Config
	Log       *zap.Logger
	Images    *storage.Images
	Auth      *services.AuthService
	Orders    *services.OrderService
	Settings  *services.SettingsService
	Push      *services.PushService
	Analytics *services.AnalyticsService
}

// NewApp builds the fiber app with global middleware and all routes.
func NewApp(d Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "FreshCart API",
		BodyLimit:    bodyLimit,
		ErrorHandler: handlers.ErrorHandler(d.Log),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !d.Config.IsProduction()}))
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(d.Log))
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Config.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	Register(app, d)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Dependencies) {
	cfg := d.Config

	authHandler := handlers.NewAuthHandler(d.DB, d.Auth, !cfg.IsProduction())
	catalogHandler := handlers.NewCatalogHandler(d.DB, d.Images, d.Log)
	productHandler := handlers.NewProductHandler(d.DB, d.Images, d.Log)
	orderHandler := handlers.NewOrderHandler(d.DB, d.Orders)
	profileHandler := handlers.NewProfileHandler(d.DB)
	marketingHandler := handlers.NewMarketingHandler(d.DB, d.Images, d.Log)
	notificationHandler := handlers.NewNotificationHandler(d.DB, d.Push)
	settingsHandler := handlers.NewSettingsHandler(d.Settings)
	adminHandler := handlers.NewAdminHandler(d.DB, d.Analytics, d.Log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())
	if cfg.StorageDisk == "local" {
		app.Static("/uploads", cfg.UploadDir, fiber.Static{MaxAge: 86400})
	}

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/otp/request", limiter.New(limiter.Config{
		Max:        5,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		},
	}), authHandler.RequestOTP)
	auth.Post("/otp/verify", authHandler.VerifyOTP)
	auth.Post("/admin/login", authHandler.AdminLogin)

	// Storefront
	api.Get("/categories", catalogHandler.ListCategories)
	api.Get("/categories/:id", catalogHandler.GetCategory)

	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)
	products.Post("/:id/waitlist", productHandler.JoinWaitlist)
	products.Delete("/:id/waitlist", productHandler.LeaveWaitlist)

	api.Get("/banners", marketingHandler.ListBanners)
	api.Get("/messages", marketingHandler.ListMessages)
	api.Get("/settings", settingsHandler.GetSettings)

	// Customer routes
	customerOnly := []fiber.Handler{
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RequireRole(utils.RoleCustomer),
	}

	me := api.Group("/me", customerOnly...)
	me.Get("/", profileHandler.GetProfile)
	me.Put("/", profileHandler.UpdateProfile)
	me.Get("/points", profileHandler.ListPoints)
	me.Put("/push-token", notificationHandler.RegisterToken)

	orders := api.Group("/orders", customerOnly...)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Post("/:id/cancel", orderHandler.CancelOrder)

	// Admin routes
	admin := api.Group("/admin",
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	admin.Get("/me", authHandler.AdminMe)

	admin.Get("/dashboard", adminHandler.DashboardStats)
	admin.Get("/dashboard/sales", adminHandler.SalesSeries)
	admin.Get("/dashboard/top-products", adminHandler.TopProducts)
	admin.Get("/dashboard/recent-orders", adminHandler.RecentOrders)

	adminCategories := admin.Group("/categories")
	adminCategories.Get("/", catalogHandler.AdminListCategories)
	adminCategories.Post("/", catalogHandler.CreateCategory)
	adminCategories.Get("/:id", catalogHandler.GetCategory)
	adminCategories.Put("/:id", catalogHandler.UpdateCategory)
	adminCategories.Delete("/:id", catalogHandler.DeleteCategory)

	adminProducts := admin.Group("/products")
	adminProducts.Get("/", productHandler.AdminListProducts)
	adminProducts.Post("/", productHandler.CreateProduct)
	adminProducts.Get("/:id", productHandler.GetProduct)
	adminProducts.Put("/:id", productHandler.UpdateProduct)
	adminProducts.Delete("/:id", productHandler.DeleteProduct)
	adminProducts.Patch("/:id/stock", productHandler.AdjustStock)

	adminOrders := admin.Group("/orders")
	adminOrders.Get("/", orderHandler.AdminListOrders)
	adminOrders.Get("/:id", orderHandler.AdminGetOrder)
	adminOrders.Patch("/:id/status", orderHandler.AdminUpdateStatus)
	adminOrders.Post("/:id/cancel", orderHandler.AdminCancelOrder)

	banners := admin.Group("/banners")
	banners.Get("/", marketingHandler.AdminListBanners)
	banners.Post("/", marketingHandler.CreateBanner)
	banners.Put("/:id", marketingHandler.UpdateBanner)
	banners.Delete("/:id", marketingHandler.DeleteBanner)

	messages := admin.Group("/messages")
	messages.Get("/", marketingHandler.AdminListMessages)
	messages.Post("/", marketingHandler.CreateMessage)
	messages.Put("/:id", marketingHandler.UpdateMessage)
	messages.Delete("/:id", marketingHandler.DeleteMessage)

	admin.Get("/notifications", notificationHandler.List)
	admin.Post("/notifications", notificationHandler.Send)

	admin.Get("/settings", settingsHandler.GetSettings)
	admin.Put("/settings", settingsHandler.UpdateSettings)

	customers := admin.Group("/customers")
	customers.Get("/", adminHandler.ListCustomers)
	customers.Get("/:id", adminHandler.GetCustomer)
	customers.Patch("/:id/block", adminHandler.SetCustomerBlocked)
}
