package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

// TursoDSN builds the libsql connection string for a Turso database.
func TursoDSN(databaseURL, authToken string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("turso database url is required")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid turso database url: %w", err)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SQLiteDSN prepares the directory for path and returns a DSN with a busy
// timeout. ":memory:" is passed through.
func SQLiteDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL", nil
}

// GetSlowQueryThreshold returns the configured slow query threshold
func GetSlowQueryThreshold() time.Duration {
	return config.SlowQueryThreshold
}

// CheckAndLogSlowQuery logs on the slow query channel when duration exceeds
// the threshold. Purge statements get a 3x allowance.
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration, identityKey string) {
	threshold := GetSlowQueryThreshold()
	if threshold <= 0 {
		return
	}
	if strings.HasPrefix(strings.TrimSpace(query), "DELETE FROM gate_sessions WHERE updated_at") {
		threshold *= 3
	}
	if duration > threshold {
		logger.LogSlowQuery(query, duration, identityKey)
	}
}
