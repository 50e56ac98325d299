package health

import (
	"context"
	"database/sql"
	"time"
)

// Service reports process and storage health.
type Service struct {
	DB *sql.DB
}

// NewService constructs a health service. DB may be nil when the process
// runs on in-memory repositories.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status returns the health payload. The database probe is best-effort: a
// nil pool reports "memory" storage rather than a failure.
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{"ok": true, "storage": "memory"}
	if s.DB == nil {
		return out
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["storage"] = "postgres_unreachable"
		return out
	}
	out["storage"] = "postgres"
	return out
}
