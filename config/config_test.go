package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ED", cfg.Enrollment.IDPrefix)
	assert.Equal(t, "EDU", cfg.Enrollment.InvoicePrefix)
	assert.True(t, cfg.Enrollment.ReferralAutoApprove)
	assert.True(t, decimal.NewFromInt(10).Equal(cfg.Enrollment.RewardPercent))
	assert.True(t, decimal.NewFromInt(500).Equal(cfg.Enrollment.TeacherCommission))
	assert.Equal(t, 10*time.Minute, cfg.Enrollment.OTPTTL)
	assert.Equal(t, 30*time.Minute, cfg.Enrollment.ValidationTTL)
	assert.Equal(t, "*/5 * * * *", cfg.Worker.CleanupCron)
	assert.True(t, cfg.Server.Development())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REFERRAL_AUTO_APPROVE", "false")
	t.Setenv("TEACHER_COMMISSION_PER_REFERRAL", "750.50")
	t.Setenv("COUPON_OTP_TTL", "5m")
	t.Setenv("FRONTEND_URL", "https://enroll.example.com/")
	t.Setenv("APP_ENV", "Production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Enrollment.ReferralAutoApprove)
	assert.Equal(t, "750.5", cfg.Enrollment.TeacherCommission.String())
	assert.Equal(t, 5*time.Minute, cfg.Enrollment.OTPTTL)
	assert.Equal(t, "https://enroll.example.com", cfg.Server.FrontendURL)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.False(t, cfg.Server.Development())
}

func TestLoad_InvalidDecimal(t *testing.T) {
	t.Setenv("REFERRAL_REWARD_PERCENT", "ten")
	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())
	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}
