// Package audit records the final state of each provisioning run.
// Records are write-only; the workflow never reads them back.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Entry is one provisioning run
type Entry struct {
	RequestID        string
	Email            string
	KeyKind          string
	Key              string
	State            string
	VendorLocationID string
	UserID           string
	Created          bool
	Partial          bool
	Detail           string
	At               time.Time
}

// Recorder persists entries
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Postgres writes entries to the provisioning_audit table
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to dsn through the pgx driver and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}
	return db, nil
}

const insertEntry = `
	INSERT INTO provisioning_audit
		(id, request_id, email, key_kind, key_value, state, vendor_location_id, tms_user_id, created, partial, detail, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Record inserts one entry
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, insertEntry,
		uuid.New().String(), e.RequestID, e.Email, e.KeyKind, e.Key, e.State,
		nullIfEmpty(e.VendorLocationID), nullIfEmpty(e.UserID), e.Created, e.Partial, nullIfEmpty(e.Detail), e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
