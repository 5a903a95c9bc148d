package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_Sorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestSchema_DeclaresCoreTables(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"enrollments", "referrals", "referral_uses", "teacher_referrals",
		"teacher_referral_uses", "coupons", "pending_coupons", "payments",
		"invoices", "sequences", "email_logs",
	} {
		assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
