package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintdeck/sprintdeck/internal/gateway"
	apperrors "github.com/sprintdeck/sprintdeck/pkg/errors"
)

type fakeDB struct {
	inserted  []interface{}
	execErr   error
	selectErr error
	records   []gateway.AuditRecord
}

func (f *fakeDB) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.inserted = append(f.inserted, arg)
	return nil, nil
}

func (f *fakeDB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	out := dest.(*[]gateway.AuditRecord)
	*out = append(*out, f.records...)
	return nil
}

func testRecord() gateway.AuditRecord {
	return gateway.AuditRecord{
		ID:            uuid.New(),
		EventType:     gateway.AuditEventTripped,
		Breaker:       "payments",
		PreviousState: "CLOSED",
		NewState:      "OPEN",
		UserID:        "u-1",
		RoleID:        "admin",
		Reason:        "maintenance window",
		CreatedAt:     time.Now(),
	}
}

func TestPostgresSinkWrite(t *testing.T) {
	db := &fakeDB{}
	sink := NewPostgresSink(db, nil)

	record := testRecord()
	err := sink.Write(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, db.inserted, 1)
	assert.Equal(t, record, db.inserted[0])
}

func TestPostgresSinkWriteRequiresID(t *testing.T) {
	db := &fakeDB{}
	sink := NewPostgresSink(db, nil)

	record := testRecord()
	record.ID = uuid.Nil
	err := sink.Write(context.Background(), record)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Empty(t, db.inserted)
}

func TestPostgresSinkWriteFailure(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	sink := NewPostgresSink(db, nil)

	err := sink.Write(context.Background(), testRecord())
	assert.Error(t, err)
}

func TestPostgresSinkListByBreaker(t *testing.T) {
	db := &fakeDB{records: []gateway.AuditRecord{testRecord(), testRecord()}}
	sink := NewPostgresSink(db, nil)

	records, err := sink.ListByBreaker(context.Background(), "payments", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPostgresSinkListFailure(t *testing.T) {
	db := &fakeDB{selectErr: errors.New("connection refused")}
	sink := NewPostgresSink(db, nil)

	_, err := sink.ListByBreaker(context.Background(), "payments", 10)
	assert.Error(t, err)
}
