package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-seedvault/internal/cache"
	"go-seedvault/internal/config"
	"go-seedvault/internal/handler"
	"go-seedvault/internal/metrics"
	"go-seedvault/internal/middleware"
	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/internal/service"
	"go-seedvault/internal/ws"
	"go-seedvault/pkg/database"
	"go-seedvault/pkg/jwt"
	applog "go-seedvault/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := applog.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Setup Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&model.Privilege{}, &model.Role{}, &model.User{},
		&model.Chamber{}, &model.Slot{}, &model.SeedType{},
		&model.Product{}, &model.Movement{}, &model.WithdrawalRequest{},
	); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	// 3. Repositories
	userRepo := repository.NewUserRepo(db)
	privilegeRepo := repository.NewPrivilegeRepo(db)
	roleRepo := repository.NewRoleRepo(db)
	chamberRepo := repository.NewChamberRepo(db)
	slotRepo := repository.NewSlotRepo(db)
	seedTypeRepo := repository.NewSeedTypeRepo(db)
	productRepo := repository.NewProductRepo(db)
	movementRepo := repository.NewMovementRepo(db)
	withdrawalRepo := repository.NewWithdrawalRepo(db)

	// 4. Seed default privileges, roles, and admin user
	userService := service.NewUserService(userRepo, privilegeRepo, roleRepo)
	if err := userService.SeedAccessControl(ctx); err != nil {
		zlog.Fatal("failed to seed roles and privileges", zap.Error(err))
	}
	if cfg.Admin.Seed {
		created, err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName)
		if err != nil {
			zlog.Warn("failed to create admin user", zap.Error(err))
		} else if created {
			zlog.Info("admin user created", zap.String("email", cfg.Admin.Email))
		}
	}

	// 5. Side channel: websocket hub, read-model cache, metrics
	wsHub := ws.NewHub(zlog.Named("ws"))
	go wsHub.Run(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	var (
		readCache  service.ReadModelCache
		redisCache *cache.Redis
	)
	if cfg.Redis.Enabled {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Read models fall back to the database.
			zlog.Warn("redis unavailable, read-model cache disabled", zap.Error(err))
		} else {
			redisCache = cache.New(client, cfg.Redis.Prefix, cfg.Redis.TTL)
			defer redisCache.Close()
			readCache = redisCache
		}
	}
	advisor := service.NewAdvisor(wsHub, readCache, recorder, zlog.Named("advisory"))

	// 6. Dependency Injection (Wiring Layers)
	policy := service.PolicyFromConfig(cfg.Allocation)
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expire)

	capacityService := service.NewCapacityService(db, slotRepo, productRepo, chamberRepo, policy)
	ledger := service.NewMovementLedger(db, movementRepo, productRepo, advisor, zlog.Named("ledger"))
	productService := service.NewProductService(service.ProductServiceDeps{
		DB:          db,
		Products:    productRepo,
		Slots:       slotRepo,
		SeedTypes:   seedTypeRepo,
		Withdrawals: withdrawalRepo,
		Capacity:    capacityService,
		Ledger:      ledger,
		Advisor:     advisor,
		Policy:      policy,
		Logger:      zlog.Named("product"),
	})
	withdrawalService := service.NewWithdrawalService(service.WithdrawalServiceDeps{
		DB:          db,
		Withdrawals: withdrawalRepo,
		Products:    productRepo,
		Slots:       slotRepo,
		Ledger:      ledger,
		Advisor:     advisor,
		Policy:      policy,
		Logger:      zlog.Named("withdrawal"),
	})
	readModelService := service.NewReadModelService(service.ReadModelServiceDeps{
		DB:          db,
		Chambers:    chamberRepo,
		Slots:       slotRepo,
		Products:    productRepo,
		Movements:   movementRepo,
		Withdrawals: withdrawalRepo,
		Capacity:    capacityService,
		Advisor:     advisor,
		Logger:      zlog.Named("readmodel"),
	})
	chamberService := service.NewChamberService(db, chamberRepo, slotRepo, seedTypeRepo, advisor, zlog.Named("chamber"))
	authService := service.NewAuthService(userRepo, tokens, zlog.Named("auth"))

	productHandler := handler.NewProductHandler(productService, readModelService)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalService)
	movementHandler := handler.NewMovementHandler(ledger)
	chamberHandler := handler.NewChamberHandler(chamberService, capacityService, readModelService)
	authHandler := handler.NewAuthHandler(authService, userService)
	userHandler := handler.NewUserHandler(userService)
	roleHandler := handler.NewRoleHandler(userService)

	// 7. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: cfg.Server.AppName,
	})

	// Middleware
	app.Use(logger.New())  // Logging request
	app.Use(recover.New()) // Panic recovery
	app.Use(cors.New())    // CORS

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
		status := fiber.Map{"status": "ok", "ws_clients": wsHub.ClientCount()}
		if redisCache != nil {
			status["cache"] = redisCache.Stats()
		}
		return c.JSON(status)
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 8. Routes
	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(authService))
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/change-password", authHandler.ChangePassword)

	// Chamber layout
	protected.Get("/chambers", middleware.RequirePrivilege("chamber:view"), chamberHandler.GetChambers)
	protected.Post("/chambers", middleware.RequirePrivilege("chamber:manage"), chamberHandler.CreateChamber)
	protected.Put("/chambers/:id/status", middleware.RequirePrivilege("chamber:manage"), chamberHandler.UpdateStatus)
	protected.Get("/chambers/:id/map", middleware.RequirePrivilege("chamber:view"), chamberHandler.GetMap)
	protected.Get("/chambers/:id/occupancy", middleware.RequirePrivilege("chamber:view"), chamberHandler.GetOccupancy)
	protected.Post("/chambers/:id/slots", middleware.RequirePrivilege("chamber:manage"), chamberHandler.GenerateSlots)

	protected.Get("/slots/:id", middleware.RequirePrivilege("chamber:view"), chamberHandler.GetSlot)
	protected.Get("/slots/:id/capacity", middleware.RequirePrivilege("chamber:view"), chamberHandler.CheckCapacity)
	protected.Get("/slots/:id/adjacent", middleware.RequirePrivilege("chamber:view"), chamberHandler.GetAdjacent)

	protected.Get("/seed-types", chamberHandler.GetSeedTypes)
	protected.Post("/seed-types", middleware.RequirePrivilege("seedtype:manage"), chamberHandler.CreateSeedType)
	protected.Put("/seed-types/:id/active", middleware.RequirePrivilege("seedtype:manage"), chamberHandler.SetSeedTypeActive)

	// Product lifecycle
	protected.Get("/products", middleware.RequirePrivilege("product:view"), productHandler.GetProducts)
	protected.Get("/products/:id", middleware.RequirePrivilege("product:view"), productHandler.GetProduct)
	protected.Get("/products/:id/history", middleware.RequireAnyPrivilege("product:view", "movement:view"), productHandler.GetHistory)
	protected.Post("/products", middleware.RequirePrivilege("product:create"), productHandler.CreateProduct)
	protected.Post("/products/:id/place", middleware.RequirePrivilege("product:place"), productHandler.Place)
	protected.Post("/products/:id/move", middleware.RequirePrivilege("product:move"), productHandler.Move)
	protected.Post("/products/:id/partial-move", middleware.RequirePrivilege("product:move"), productHandler.PartialMove)
	protected.Post("/products/:id/exit", middleware.RequirePrivilege("product:exit"), productHandler.PartialExit)
	protected.Post("/products/:id/stock", middleware.RequirePrivilege("product:adjust"), productHandler.AddStock)
	protected.Post("/products/:id/remove", middleware.RequirePrivilege("product:remove"), productHandler.Remove)

	// Movement ledger
	protected.Get("/movements", middleware.RequirePrivilege("movement:view"), movementHandler.GetMovements)
	protected.Post("/movements/manual", middleware.RequirePrivilege("movement:create"), movementHandler.RecordManual)

	// Withdrawal workflow. Capabilities are checked again by the service.
	withdrawals := protected.Group("/withdrawals", middleware.RequireAnyPrivilege(model.PrivWithdrawalRequest, model.PrivWithdrawalConfirm))
	withdrawals.Get("", withdrawalHandler.GetRequests)
	withdrawals.Get("/:id", withdrawalHandler.GetRequest)
	withdrawals.Post("", withdrawalHandler.Request)
	withdrawals.Post("/:id/confirm", withdrawalHandler.Confirm)
	withdrawals.Post("/:id/cancel", withdrawalHandler.Cancel)

	// User Management Routes (with privilege checks)
	protected.Get("/users", middleware.RequirePrivilege("user:view"), userHandler.GetUsers)
	protected.Get("/users/:id", middleware.RequirePrivilege("user:view"), userHandler.GetUser)
	protected.Post("/users", middleware.RequirePrivilege("user:create"), userHandler.CreateUser)
	protected.Put("/users/:id/privileges", middleware.RequirePrivilege("user:update_privilege"), userHandler.UpdateUserPrivileges)

	protected.Get("/roles", roleHandler.GetRoles)
	protected.Get("/privileges", roleHandler.GetPrivileges)

	// WebSocket Route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		if !wsHub.Join(c) {
			return
		}
		defer wsHub.Leave(c)

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 9. Graceful Shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zlog.Info("server listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	zlog.Info("shutting down server")
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}
