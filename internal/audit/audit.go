package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/sprintdeck/sprintdeck/internal/gateway"
	"github.com/sprintdeck/sprintdeck/pkg/errors"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// dbtx is the subset of sqlx.DB the sink needs, kept narrow so tests can
// substitute a fake.
type dbtx interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresSink persists breaker override audit records to Postgres. It
// implements gateway.AuditSink; the gateway invokes Write from a
// fire-and-forget goroutine, so a slow or failing database never blocks
// an override.
type PostgresSink struct {
	db     dbtx
	logger *logging.Logger
}

// NewPostgresSink creates an audit sink over the given database
func NewPostgresSink(db dbtx, logger *logging.Logger) *PostgresSink {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &PostgresSink{
		db:     db,
		logger: logger,
	}
}

const insertRecordQuery = `
	INSERT INTO gateway_audit_log (
		id, event_type, breaker, previous_state, new_state,
		user_id, role_id, tenant_id, reason, created_at
	) VALUES (
		:id, :event_type, :breaker, :previous_state, :new_state,
		:user_id, :role_id, :tenant_id, :reason, :created_at
	)`

// Write inserts an audit record
func (s *PostgresSink) Write(ctx context.Context, record gateway.AuditRecord) error {
	if record.ID == uuid.Nil {
		return errors.NewValidationError("audit record ID is required")
	}

	if _, err := s.db.NamedExecContext(ctx, insertRecordQuery, record); err != nil {
		return errors.NewInternalError("failed to insert audit record").WithCause(err)
	}

	s.logger.Debug("Audit record written",
		"breaker", record.Breaker,
		"event_type", record.EventType,
		"user_id", record.UserID,
	)
	return nil
}

const listByBreakerQuery = `
	SELECT id, event_type, breaker, previous_state, new_state,
	       user_id, role_id, tenant_id, reason, created_at
	FROM gateway_audit_log
	WHERE breaker = $1
	ORDER BY created_at DESC
	LIMIT $2`

// ListByBreaker returns the most recent override records for a breaker
func (s *PostgresSink) ListByBreaker(ctx context.Context, breaker string, limit int) ([]gateway.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records := []gateway.AuditRecord{}
	if err := s.db.SelectContext(ctx, &records, listByBreakerQuery, breaker, limit); err != nil {
		return nil, errors.NewInternalError("failed to list audit records").WithCause(err)
	}
	return records, nil
}
