package internal

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixelmint/pkg/cache"
	"pixelmint/pkg/config"
	"pixelmint/pkg/database"
	"pixelmint/pkg/jwt"
	"pixelmint/pkg/logger"
	"pixelmint/pkg/middleware"
	"pixelmint/pkg/queue"
	"pixelmint/pkg/s3"
	creditsHTTP "pixelmint/services/credits/internal/controller/http"
	"pixelmint/services/credits/internal/gateway"
	"pixelmint/services/credits/internal/repo/persistent"
	"pixelmint/services/credits/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "pixelmint/services/credits/docs" // Swagger docs
)

type App struct {
	cfg              *config.Config
	log              *logger.Logger
	db               *gorm.DB
	redisClient      *redis.Client
	s3Client         *s3.Client
	jwtService       *jwt.Service
	queueClient      *queue.Client
	httpServer       *http.Server
	reconcilerCancel context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.New()

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		return nil, err
	}

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("Failed to connect to redis: %v (continuing without cache)", err)
		redisClient = nil
	}

	s3Client, err := s3.NewClient(cfg)
	if err != nil {
		log.Error("Failed to create S3 client: %v", err)
		return nil, err
	}

	queueClient, err := queue.NewRabbitMQClient(cfg, log)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ: %v (continuing without queue)", err)
		queueClient = nil
	}

	jwtService := jwt.NewService(cfg.JWTSecret)

	return &App{
		cfg:         cfg,
		log:         log,
		db:          db,
		redisClient: redisClient,
		s3Client:    s3Client,
		jwtService:  jwtService,
		queueClient: queueClient,
	}, nil
}

func (a *App) Run() error {
	startingBalance, err := decimal.NewFromString(a.cfg.StartingBalance)
	if err != nil {
		a.log.Error("Invalid starting balance %q: %v", a.cfg.StartingBalance, err)
		return err
	}

	// Initialize repositories
	ledgerRepo := persistent.NewLedgerRepository(a.db, startingBalance, a.log)
	jobRepo := persistent.NewGenerationJobRepository(a.db)
	packageRepo := persistent.NewCreditPackageRepository(a.db)

	// Initialize gateways
	paymentGateway := gateway.NewPaymentGateway(a.cfg, a.log)
	generationClient := gateway.NewGenerationClient(a.cfg, a.log)
	artifactStore := gateway.NewArtifactStore(a.s3Client, a.log)

	// queueClient may be nil; the usecases publish best effort
	var publisher usecase.EventPublisher
	if a.queueClient != nil {
		publisher = a.queueClient
	}

	// Initialize use cases
	balanceUseCase := usecase.NewBalanceUseCase(ledgerRepo, a.redisClient, a.log)
	purchaseUseCase := usecase.NewPurchaseUseCase(
		ledgerRepo,
		packageRepo,
		paymentGateway,
		publisher,
		a.redisClient,
		a.log,
		a.cfg.SpendMaxRetries,
	)
	generationUseCase := usecase.NewGenerationUseCase(
		ledgerRepo,
		jobRepo,
		generationClient,
		artifactStore,
		publisher,
		a.redisClient,
		a.log,
		a.cfg.SpendMaxRetries,
		a.cfg.GenerationTimeout,
	)

	// Start the background sweep for stale reserved jobs
	reconciler := usecase.NewReconciler(
		ledgerRepo,
		jobRepo,
		publisher,
		a.redisClient,
		a.log,
		a.cfg.ReconcilerInterval,
		a.cfg.ReconcilerStaleAge,
		a.cfg.SpendMaxRetries,
	)
	reconcilerCtx, cancel := context.WithCancel(context.Background())
	a.reconcilerCancel = cancel
	go reconciler.Run(reconcilerCtx)

	// Initialize HTTP handlers
	creditsHandler := creditsHTTP.NewCreditsHandler(balanceUseCase, purchaseUseCase, generationUseCase, a.log)

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(a.jwtService))
	if a.redisClient != nil {
		api.Use(middleware.RateLimitMiddleware(a.redisClient, 100, time.Minute))
	}

	{
		api.GET("/credits", creditsHandler.GetBalance)
		api.GET("/credits/transactions", creditsHandler.GetTransactions)
		api.GET("/credits/packages", creditsHandler.ListPackages)
		api.POST("/credits/purchase", creditsHandler.ConfirmPurchase)
		api.POST("/generate", creditsHandler.Generate)
	}

	// Create HTTP server
	a.httpServer = &http.Server{
		Addr:    ":" + a.cfg.ServerPort,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		a.log.Info("Credits service starting on port %s", a.cfg.ServerPort)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	return nil
}

func (a *App) Wait() {
	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.log.Info("Shutting down credits service...")
}

func (a *App) Shutdown() error {
	// The context is used to inform the server it has 5 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop the reconciler loop
	if a.reconcilerCancel != nil {
		a.reconcilerCancel()
	}

	// Shutdown server before closing its dependencies
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error("Server forced to shutdown: %v", err)
		return err
	}

	// Close database connection
	sqlDB, err := a.db.DB()
	if err == nil {
		if err := sqlDB.Close(); err != nil {
			a.log.Error("Error closing database: %v", err)
		}
	}

	// Close Redis connection
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Error("Error closing Redis: %v", err)
		}
	}

	// Close RabbitMQ connection
	if a.queueClient != nil {
		if err := a.queueClient.Close(); err != nil {
			a.log.Error("Error closing RabbitMQ: %v", err)
		}
	}

	a.log.Info("Credits service exited")
	return nil
}
