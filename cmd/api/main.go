package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/gigmarket/gigauth/internal/config"
	"github.com/gigmarket/gigauth/internal/handler"
	"github.com/gigmarket/gigauth/internal/middleware"
	pgRepo "github.com/gigmarket/gigauth/internal/repository/postgres"
	redisRepo "github.com/gigmarket/gigauth/internal/repository/redis"
	"github.com/gigmarket/gigauth/internal/service"
	"github.com/gigmarket/gigauth/internal/service/verification"
	"github.com/gigmarket/gigauth/pkg/auth"
	"github.com/gigmarket/gigauth/pkg/database"
)

func main() {
	// Локальный .env не обязателен; в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: не удалось прочитать .env: %v", err)
	}
	if err := run(); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	log.Println("Server exited properly")
}

// run собирает зависимости и обслуживает HTTP до сигнала остановки.
// Отложенные Close выполняются на любом пути выхода.
func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	isProduction := gin.Mode() == gin.ReleaseMode

	// PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), isProduction)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.MigrateDB(db, database.DefaultMigrationsPath); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	sqlDB, err := database.GetSQLDB(db)
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Redis: один клиент на процесс, закрывается при остановке
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer database.CloseRedis(redisClient)
	log.Println("Successfully connected to Redis")

	// Репозитории
	userRepo := pgRepo.NewUserRepo(db)
	otpRepo := pgRepo.NewOTPRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient, cfg.Redis.OpTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize CacheRepo: %w", err)
	}
	sessionCache := redisRepo.NewSessionCache(cacheRepo)
	attemptCounter := redisRepo.NewAttemptCounter(cacheRepo)

	// Движок одноразовых кодов
	policies, err := verification.NewPolicyRegistry(cfg.OTP.PolicyTable())
	if err != nil {
		return fmt.Errorf("failed to build OTP policy registry: %w", err)
	}
	notifier, err := service.NewNotifier(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	engine, err := verification.NewEngine(verification.Deps{
		Policies:  policies,
		Store:     otpRepo,
		Limiter:   attemptCounter,
		Notifier:  notifier,
		Generator: verification.NewCryptoGenerator(),
	}, cfg.OTP.EngineConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize verification engine: %w", err)
	}

	// Сессии и токены
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpirationMin)*time.Minute, cfg.JWT.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize JWTService: %w", err)
	}
	sessionManager, err := service.NewSessionManager(sessionCache, userRepo, cfg.Session.SessionTTL(), cfg.Session.RefreshTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize SessionManager: %w", err)
	}
	authService, err := service.NewAuthService(userRepo, engine, sessionManager, jwtService, attemptCounter, service.AuthConfig{
		LoginMaxFailures: cfg.Auth.LoginMaxFailures,
		LoginWindow:      cfg.Auth.LoginWindow,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize AuthService: %w", err)
	}

	// Обработчики и middleware
	authHandler := handler.NewAuthHandler(authService)
	verificationHandler := handler.NewVerificationHandler(engine)
	healthHandler := handler.NewHealthHandler(handler.PingFunc(sqlDB.PingContext), cacheRepo)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, sessionManager)
	rateLimiter := middleware.NewRateLimiter(attemptCounter, middleware.RateLimitConfig{
		MaxRequests: cfg.RateLimit.Requests,
		Window:      cfg.RateLimit.Window,
		FailOpen:    cfg.RateLimit.FailOpen,
		LocalRPS:    cfg.RateLimit.LocalRPS,
		LocalBurst:  cfg.RateLimit.LocalBurst,
	})

	router := gin.Default()
	router.Use(middleware.RequestID())

	allowedOrigins := cfg.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler.Check)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(rateLimiter.Limit())
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/2fa/verify", authHandler.VerifyTwoFactor)
			authGroup.POST("/refresh", authHandler.RefreshToken)

			authGroup.POST("/otp/request", verificationHandler.RequestCode)
			authGroup.POST("/otp/verify", verificationHandler.VerifyCode)
			authGroup.GET("/otp/status", verificationHandler.Status)

			authGroup.POST("/password/forgot", authHandler.ForgotPassword)
			authGroup.POST("/password/reset", authHandler.ResetPassword)
			authGroup.POST("/email/confirm", authHandler.ConfirmEmail)
			authGroup.POST("/account/confirm", authHandler.ConfirmAccount)

			authGroup.POST("/logout", authMiddleware.RequireAuth(), authHandler.Logout)
		}

		users := api.Group("/users")
		users.Use(authMiddleware.RequireAuth())
		{
			users.GET("/me", authHandler.GetMe)
		}
	}

	// Тайм-ауты защищают от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	return nil
}
