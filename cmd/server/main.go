// Package main runs the enrollment API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/educatory/backend/config"
	"github.com/educatory/backend/internal/auth"
	"github.com/educatory/backend/internal/coupons"
	"github.com/educatory/backend/internal/documents"
	"github.com/educatory/backend/internal/emaillogs"
	"github.com/educatory/backend/internal/enrollments"
	"github.com/educatory/backend/internal/middleware"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/payments"
	"github.com/educatory/backend/internal/referrals"
	"github.com/educatory/backend/internal/store/postgres"
	"github.com/educatory/backend/pkg/database"
	"github.com/educatory/backend/pkg/queue"
	"github.com/educatory/backend/pkg/redis"
	"github.com/educatory/backend/pkg/response"
	"github.com/educatory/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolConfig{
		MaxConns:        int32(cfg.Database.MaxConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	uploader := newUploader(ctx, cfg, logger)

	var docs documents.Generator = documents.Noop{}
	if cfg.Documents.Enabled {
		chrome := documents.NewChrome(cfg.Documents.Timeout, logger)
		defer chrome.Close()
		docs = chrome
	}

	if cfg.Razorpay.KeySecret == "" && !cfg.Server.Development() {
		logger.Fatal("RAZORPAY_KEY_SECRET is required outside development", zap.String("environment", cfg.Server.Environment))
	}
	var gateway payments.Gateway = payments.Stub{}
	if cfg.Razorpay.KeyID != "" {
		gateway = payments.NewRazorpay(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	} else {
		logger.Warn("razorpay keys not set, using stub payment gateway")
	}

	st := postgres.New(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	emailLogsRepo := emaillogs.NewRepository(pool)
	dispatcher := notifications.NewQueueDispatcher(emailLogsRepo, jobQueue, cfg.Email.AdminAddress, logger)
	composer := notifications.NewComposer(cfg.Server.FrontendURL, cfg.Enrollment.RewardPercent)

	// Coupons
	couponSvc := coupons.NewService(st, dispatcher, composer, docs, couponPolicy(cfg), logger)
	couponHandler := coupons.NewHandler(couponSvc, logger)

	// Referrals and teacher partners
	referralSvc := referrals.NewService(st, dispatcher, composer, docs, referrals.Policy{
		AutoApprove:       cfg.Enrollment.ReferralAutoApprove,
		DefaultCommission: cfg.Enrollment.TeacherCommission,
		RewardPercent:     cfg.Enrollment.RewardPercent,
	}, logger, referrals.WithRewards(couponSvc))
	referralHandler := referrals.NewHandler(referralSvc, logger)

	// Enrollments
	enrollmentSvc := enrollments.NewService(st, referralSvc, couponSvc, dispatcher, composer, docs, enrollments.Config{
		IDPrefix:      cfg.Enrollment.IDPrefix,
		InvoicePrefix: cfg.Enrollment.InvoicePrefix,
	}, logger)
	enrollmentHandler := enrollments.NewHandler(enrollmentSvc, uploader, logger)

	// Payments
	paymentSvc := payments.NewService(st, gateway, referralSvc, couponSvc, payments.Credentials{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
	}, logger)
	paymentHandler := payments.NewHandler(paymentSvc, logger)

	// Admin
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.Issuer)
	authRepo := auth.NewRepository(pool)
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		created, err := authRepo.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name)
		if err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		if created {
			logger.Info("admin account created", zap.String("email", cfg.Admin.Email))
		}
	}
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil || !rdb.Healthy(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Error: "unhealthy"})
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/enrollments", enrollmentHandler.Create)
		api.POST("/enrollments/fetch", enrollmentHandler.Fetch)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.PUT("/enrollments/:id", enrollmentHandler.Complete)

		api.POST("/payments/create-order", paymentHandler.CreateOrder)
		api.POST("/payments/verify", paymentHandler.Verify)

		api.POST("/coupons/validate", couponHandler.Validate)
		api.POST("/coupons/verify-otp", couponHandler.VerifyOTP)

		api.POST("/referrals/validate", referralHandler.Validate)
		api.POST("/teachers/register", referralHandler.RegisterTeacher)
		api.GET("/teachers/referrals", referralHandler.TeacherStudents)

		api.POST("/admin/login", authHandler.Login)
	}

	// Back office (JWT + admin role)
	admin := router.Group("/api/admin")
	admin.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/email-logs", emailLogsHandler.List)
		admin.GET("/referral-uses", referralHandler.ListUses)
		admin.POST("/referral-uses/:id/approve", referralHandler.Approve)
		admin.POST("/referral-uses/:id/reject", referralHandler.Reject)
		admin.POST("/commissions/:id/paid", referralHandler.MarkCommissionPaid)
		admin.POST("/maintenance/cleanup", couponHandler.Sweep)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newUploader picks Cloudinary when configured, then S3. Nil disables uploads.
func newUploader(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.Uploader {
	if cfg.Cloudinary.CloudName != "" {
		cld, err := storage.NewCloudinary(storage.CloudinaryConfig{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		})
		if err == nil {
			return cld
		}
		logger.Warn("cloudinary disabled", zap.Error(err))
	}
	if cfg.AWS.Region != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			DocumentsBucket: cfg.AWS.DocumentsBucket,
		}, logger)
		if err == nil {
			return s3
		}
		logger.Warn("s3 disabled", zap.Error(err))
	}
	logger.Warn("no file storage configured, document uploads are disabled")
	return nil
}

func couponPolicy(cfg *config.Config) coupons.Policy {
	return coupons.Policy{
		OTPTTL:         cfg.Enrollment.OTPTTL,
		ValidationTTL:  cfg.Enrollment.ValidationTTL,
		MaxOTPAttempts: cfg.Enrollment.MaxOTPAttempts,
		RewardPercent:  cfg.Enrollment.RewardPercent,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
