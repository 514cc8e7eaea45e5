package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// StatusFunc returns the current polling status.
type StatusFunc func() models.PollingStatus

// EngineChecker reports whether the polling engine is running.
type EngineChecker struct {
	status StatusFunc
}

// NewEngineChecker creates a checker over the engine status.
func NewEngineChecker(status StatusFunc) *EngineChecker {
	return &EngineChecker{status: status}
}

// Name returns the checker name.
func (c *EngineChecker) Name() string {
	return "engine"
}

// Check fails while polling is stopped.
func (c *EngineChecker) Check(ctx context.Context) error {
	if c.status == nil {
		return fmt.Errorf("engine not configured")
	}
	if !c.status().IsActive {
		return fmt.Errorf("polling stopped")
	}
	return nil
}
