package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/config"
	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/product"
	"github.com/wichananm65/storefront-backend/internal/telemetry"
	"github.com/wichananm65/storefront-backend/internal/user"
	"go.uber.org/zap"
)

const (
	serviceName = "storefront-backend"
	version     = "1.0.0"
)

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(serviceName, cfg.Env, cfg.LogFile)
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}

	db := mustOpenDB(ctx, cfg.DatabaseURL, logger)
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("migrate schema", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	setupCORS(app, cfg.CORSOrigins)
	app.Use(telemetry.Middleware(serviceName))
	app.Use(logging.Middleware(logger))
	app.Use(m.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler(reg))

	productRepo := product.NewPostgresRepository(db)
	productHandler := product.NewHandler(product.NewService(productRepo))

	cartService := cart.NewService(cart.NewPostgresRepository(db), m)
	cartHandler := cart.NewHandler(cartService)

	addressService := address.NewService(address.NewPostgresRepository(db))
	addressHandler := address.NewHandler(addressService)

	provider := payment.NewRazorpayClient(cfg.Razorpay, m)
	broker := payment.NewBroker(provider, addressService, cfg.Razorpay.KeyID)
	orderService := order.NewService(order.Deps{
		Repo:       order.NewPostgresRepository(db),
		Transactor: database.NewSQLTransactor(db),
		Verifier:   payment.NewVerifier(cfg.Razorpay.KeySecret),
		Intents:    broker,
		Stock:      productRepo,
		Cart:       cartService,
		Metrics:    m,
	})
	orderHandler := order.NewHandler(orderService, broker)

	productHandler.RegisterPublicRoutes(app)

	api := app.Group("/", user.NewJWTMiddleware(cfg.JWTSecret, user.PublicGET("/api/v1/products")))
	productHandler.RegisterProtectedRoutes(api)
	cartHandler.RegisterProtectedRoutes(api)
	addressHandler.RegisterProtectedRoutes(api)
	orderHandler.RegisterProtectedRoutes(api)

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := app.Listen(cfg.Addr); err != nil {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracer shutdown", zap.Error(err))
	}
}

func setupCORS(app *fiber.App, origins string) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + logging.RequestIDHeader,
	}))
}

func mustOpenDB(ctx context.Context, dsn string, logger *zap.Logger) *sql.DB {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatal("ping database", zap.Error(err))
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db
}
