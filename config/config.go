package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Admin      AdminConfig
	AWS        AWSConfig
	Cloudinary CloudinaryConfig
	Razorpay   RazorpayConfig
	Email      EmailConfig
	Enrollment EnrollmentConfig
	Documents  DocumentsConfig
	Worker     WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Environment        string // "development" allows running without gateway keys
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	FrontendURL        string // base for payment links in emails
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string // if set, used as-is
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxConnLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings for the admin API.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	Issuer      string
}

// AdminConfig seeds the back-office account on startup when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// AWSConfig holds AWS credentials and the documents bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	DocumentsBucket string
}

// CloudinaryConfig is used instead of S3 for uploads when CloudName is set.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// RazorpayConfig for the payment gateway.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// EmailConfig for SMTP delivery.
type EmailConfig struct {
	FromAddress  string
	FromName     string
	AdminAddress string // CC on completion emails
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
}

// EnrollmentConfig holds business constants for enrollments, referrals and coupons.
type EnrollmentConfig struct {
	IDPrefix            string
	InvoicePrefix       string
	ReferralAutoApprove bool
	RewardPercent       decimal.Decimal
	TeacherCommission   decimal.Decimal
	OTPTTL              time.Duration
	ValidationTTL       time.Duration
	MaxOTPAttempts      int
}

// DocumentsConfig controls headless Chrome rendering.
type DocumentsConfig struct {
	Enabled bool
	Timeout time.Duration
}

// WorkerConfig for the background worker.
type WorkerConfig struct {
	CleanupCron string
}

// Development reports whether the server runs in the development environment.
func (c ServerConfig) Development() bool {
	return c.Environment == "development"
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	rewardPercent, err := decimal.NewFromString(getEnv("REFERRAL_REWARD_PERCENT", "10"))
	if err != nil {
		return nil, fmt.Errorf("REFERRAL_REWARD_PERCENT: %w", err)
	}
	commission, err := decimal.NewFromString(getEnv("TEACHER_COMMISSION_PER_REFERRAL", "500.00"))
	if err != nil {
		return nil, fmt.Errorf("TEACHER_COMMISSION_PER_REFERRAL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Environment:        strings.ToLower(getEnv("APP_ENV", "development")),
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "educatory"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 12),
			Issuer:      getEnv("JWT_ISSUER", "educatory"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			DocumentsBucket: getEnv("AWS_S3_DOCUMENTS_BUCKET", "educatory-documents"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", "enrollments"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
		},
		Email: EmailConfig{
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Educatory"),
			AdminAddress: getEnv("EMAIL_ADMIN_ADDRESS", ""),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPass:     getEnv("SMTP_PASS", ""),
		},
		Enrollment: EnrollmentConfig{
			IDPrefix:            getEnv("ENROLLMENT_ID_PREFIX", "ED"),
			InvoicePrefix:       getEnv("INVOICE_PREFIX", "EDU"),
			ReferralAutoApprove: getEnvBool("REFERRAL_AUTO_APPROVE", true),
			RewardPercent:       rewardPercent,
			TeacherCommission:   commission,
			OTPTTL:              getEnvDuration("COUPON_OTP_TTL", 10*time.Minute),
			ValidationTTL:       getEnvDuration("COUPON_VALIDATION_TTL", 30*time.Minute),
			MaxOTPAttempts:      getEnvInt("COUPON_MAX_OTP_ATTEMPTS", 5),
		},
		Documents: DocumentsConfig{
			Enabled: getEnvBool("DOCUMENTS_ENABLED", false),
			Timeout: getEnvDuration("DOCUMENTS_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			CleanupCron: getEnv("CLEANUP_CRON", "*/5 * * * *"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
