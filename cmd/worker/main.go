// Package main runs the background worker: email delivery and the coupon cleanup schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/educatory/backend/config"
	"github.com/educatory/backend/internal/coupons"
	"github.com/educatory/backend/internal/emaillogs"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/store/postgres"
	"github.com/educatory/backend/internal/worker"
	"github.com/educatory/backend/pkg/database"
	"github.com/educatory/backend/pkg/queue"
	"github.com/educatory/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	emailLogsRepo := emaillogs.NewRepository(pool)
	mailer := notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		User:        cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPass,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	})
	processor := worker.NewEmailProcessor(jobQueue, mailer, emailLogsRepo, logger)

	// The sweep only touches coupon rows; it never sends mail.
	dispatcher := notifications.NewQueueDispatcher(emailLogsRepo, jobQueue, cfg.Email.AdminAddress, logger)
	composer := notifications.NewComposer(cfg.Server.FrontendURL, cfg.Enrollment.RewardPercent)
	couponSvc := coupons.NewService(postgres.New(pool), dispatcher, composer, nil, coupons.Policy{
		OTPTTL:         cfg.Enrollment.OTPTTL,
		ValidationTTL:  cfg.Enrollment.ValidationTTL,
		MaxOTPAttempts: cfg.Enrollment.MaxOTPAttempts,
		RewardPercent:  cfg.Enrollment.RewardPercent,
	}, logger)
	scheduler, err := worker.NewScheduler(cfg.Worker.CleanupCron, couponSvc, logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.RunOnce()
	scheduler.Start()
	go processor.Run(workerCtx)
	logger.Info("worker started", zap.String("cleanup_cron", cfg.Worker.CleanupCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	scheduler.Stop()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
