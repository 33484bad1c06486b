// Package sqlite is the embedded relational verification store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store implements domain.VerificationStore on a single SQLite file.
type Store struct {
	db        *sql.DB
	otpTable  string
	callTable string
	now       func() time.Time
}

// Open opens (creating if needed) the database at path and runs Migrate.
func Open(ctx context.Context, path string, tables config.DatabaseTables) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create storage dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer at a time; SQLite's own locking does the rest across processes.
	db.SetMaxOpenConns(1)
	s := &Store{
		db:        db,
		otpTable:  tables.SMSOTP,
		callTable: tables.CallVerification,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates both tables if they do not exist. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uuid      TEXT PRIMARY KEY,
			mobile    TEXT NOT NULL,
			otp       TEXT NOT NULL,
			syncref   TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			created   INTEGER NOT NULL,
			modified  INTEGER NOT NULL
		)`, s.otpTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uuid          TEXT PRIMARY KEY,
			mobile        TEXT NOT NULL,
			call_received INTEGER NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL DEFAULT 0,
			created       INTEGER NOT NULL,
			modified      INTEGER NOT NULL
		)`, s.callTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_mobile_idx ON %s (mobile, created)`, s.callTable, s.callTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	slog.Info("verification tables ready", "otp_table", s.otpTable, "call_table", s.callTable)
	return nil
}

// CountOTPRequests returns the number of OTP requests ever recorded.
func (s *Store) CountOTPRequests(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.otpTable)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count otp requests: %w", err)
	}
	return n, nil
}

func (s *Store) InsertOTPRequest(ctx context.Context, r *domain.OTPRequest) error {
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.ModifiedAt = r.CreatedAt
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uuid, mobile, otp, syncref, completed, created, modified) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.otpTable),
		r.ID, r.Mobile, r.Code, r.ExternalRef, boolInt(r.Completed), r.CreatedAt.Unix(), r.ModifiedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert otp request: %w", err)
	}
	return nil
}

func (s *Store) FindOTPRequestByID(ctx context.Context, id string) (*domain.OTPRequest, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uuid, mobile, otp, syncref, completed, created, modified FROM %s WHERE uuid = ?`, s.otpTable), id)
	var (
		r                 domain.OTPRequest
		completed         int
		created, modified int64
	)
	err := row.Scan(&r.ID, &r.Mobile, &r.Code, &r.ExternalRef, &completed, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("otp request %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find otp request: %w", err)
	}
	r.Completed = completed != 0
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.ModifiedAt = time.Unix(modified, 0).UTC()
	return &r, nil
}

func (s *Store) MarkOTPCompleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET completed = 1, modified = ? WHERE uuid = ? AND completed = 0`, s.otpTable),
		s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("sqlite: complete otp request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.FindOTPRequestByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("otp request %s already completed: %w", id, domain.ErrConflict)
}

func (s *Store) InsertCallRequest(ctx context.Context, r *domain.CallRequest) error {
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.ModifiedAt = r.CreatedAt
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uuid, mobile, call_received, completed, created, modified) VALUES (?, ?, ?, ?, ?, ?)`, s.callTable),
		r.ID, r.Mobile, boolInt(r.CallReceived), boolInt(r.Completed), r.CreatedAt.Unix(), r.ModifiedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert call request: %w", err)
	}
	return nil
}

// FindCallRequestByMobile returns the newest request for mobile that is not yet verified.
func (s *Store) FindCallRequestByMobile(ctx context.Context, mobile string) (*domain.CallRequest, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uuid, mobile, call_received, completed, created, modified FROM %s
			WHERE mobile = ? AND completed = 0 ORDER BY created DESC, uuid DESC LIMIT 1`, s.callTable), mobile)
	r, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open call request for %s: %w", mobile, domain.ErrNotFound)
	}
	return r, err
}

func (s *Store) FindCallRequestByID(ctx context.Context, id string) (*domain.CallRequest, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uuid, mobile, call_received, completed, created, modified FROM %s WHERE uuid = ?`, s.callTable), id)
	r, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call request %s: %w", id, domain.ErrNotFound)
	}
	return r, err
}

func (s *Store) MarkCallReceived(ctx context.Context, mobile string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %[1]s SET call_received = 1, modified = ?
			WHERE uuid = (SELECT uuid FROM %[1]s WHERE mobile = ? AND completed = 0 ORDER BY created DESC, uuid DESC LIMIT 1)
			AND call_received = 0`, s.callTable),
		s.now().Unix(), mobile)
	if err != nil {
		return fmt.Errorf("sqlite: mark call received: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// Nothing changed: either already received or nothing open for this mobile.
	_, err = s.FindCallRequestByMobile(ctx, mobile)
	return err
}

func (s *Store) MarkCallCompleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET completed = 1, modified = ? WHERE uuid = ? AND call_received = 1 AND completed = 0`, s.callTable),
		s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("sqlite: mark call completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	r, err := s.FindCallRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if !r.CallReceived {
		return fmt.Errorf("call request %s has no call yet: %w", id, domain.ErrConflict)
	}
	return nil
}

func scanCall(row *sql.Row) (*domain.CallRequest, error) {
	var (
		r                   domain.CallRequest
		received, completed int
		created, modified   int64
	)
	if err := row.Scan(&r.ID, &r.Mobile, &received, &completed, &created, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan call request: %w", err)
	}
	r.CallReceived = received != 0
	r.Completed = completed != 0
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.ModifiedAt = time.Unix(modified, 0).UTC()
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
