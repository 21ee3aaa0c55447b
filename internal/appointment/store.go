package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a local booking collaborator backed by SQLite, used when no remote
// appointment service is configured.
type Store struct {
	DB *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			craftsman_id TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			address TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS customers_phone ON customers(craftsman_id, phone);`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			craftsman_id TEXT NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			service_type TEXT NOT NULL,
			description TEXT,
			location TEXT,
			preferred_date TEXT,
			preferred_time TEXT,
			urgency TEXT NOT NULL,
			caller_phone TEXT,
			status TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Create finds or creates the customer and inserts the appointment in one transaction.
func (s *Store) Create(ctx context.Context, req Request) (string, error) {
	d := req.AppointmentData
	if req.CraftsmanID == "" {
		return "", fmt.Errorf("%w: craftsman id required", ErrRejected)
	}
	if strings.TrimSpace(d.CustomerName) == "" || strings.TrimSpace(d.PhoneNumber) == "" {
		return "", fmt.Errorf("%w: customer name and phone required", ErrRejected)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	var customerID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE craftsman_id = ? AND phone = ? LIMIT 1`,
		req.CraftsmanID, d.PhoneNumber).Scan(&customerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		customerID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers(id, craftsman_id, name, phone, address, created_at) VALUES(?,?,?,?,?,?)`,
			customerID, req.CraftsmanID, d.CustomerName, d.PhoneNumber, d.Address, now); err != nil {
			return "", fmt.Errorf("insert customer: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("lookup customer: %w", err)
	}

	appointmentID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO appointments(id, craftsman_id, customer_id, service_type, description, location,
			preferred_date, preferred_time, urgency, caller_phone, status, source, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		appointmentID, req.CraftsmanID, customerID, d.ServiceType, d.Description, d.Address,
		d.PreferredDate, d.PreferredTime, d.Urgency, req.PhoneNumber, "pending", "phone", now); err != nil {
		return "", fmt.Errorf("insert appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return appointmentID, nil
}

// Count returns the number of stored appointments for a craftsman.
func (s *Store) Count(ctx context.Context, craftsmanID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments WHERE craftsman_id = ?`, craftsmanID).Scan(&n)
	return n, err
}
