package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/raffle?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "raffle"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestParseNumeric(t *testing.T) {
	v, err := parseNumeric("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, 256, v.BitLen())

	_, err = parseNumeric("12.5")
	require.Error(t, err)
	assert.Equal(t, "0", numericString(nil))
}

func TestAuditListQuery(t *testing.T) {
	q, args := auditListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Unix(100, 0)
	q, args = auditListQuery(domain.ListOpts{Since: &since, Limit: 10, Offset: 5})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{since, 10, 5}, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_raffle.sql")
	require.NoError(t, err)
	for _, table := range []string{"raffle_params", "rounds", "holdings", "rewards", "sales", "audit_log"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
