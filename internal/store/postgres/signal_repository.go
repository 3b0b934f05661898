package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"xray-go/internal/domain"
	"xray-go/internal/metrics"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const uniqueViolation = "23505"

// SignalRepository implements store.SignalRepository using PostgreSQL.
type SignalRepository struct {
	db *DB
}

// NewSignalRepository creates a new PostgreSQL-backed signal repository.
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create stores a new signal. A conflict on (device_id, timestamp) maps
// to domain.ErrDuplicateSignal so the caller can tell a duplicate commit
// from a storage outage.
func (r *SignalRepository) Create(ctx context.Context, signal *domain.Signal) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "create", start, err) }()

	if signal.ID == "" {
		signal.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = now
	}
	signal.UpdatedAt = now

	data, err := json.Marshal(signal.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal signal data: %w", err)
	}

	query := `
		INSERT INTO signals (
			id, device_id, timestamp, data_length, data_volume, data,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.pool.Exec(ctx, query,
		signal.ID,
		signal.DeviceID,
		signal.Timestamp,
		signal.DataLength,
		signal.DataVolume,
		data,
		signal.CreatedAt,
		signal.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateSignal
		}
		return fmt.Errorf("failed to create signal: %w", err)
	}

	return nil
}

// List retrieves signals matching the filter criteria.
func (r *SignalRepository) List(ctx context.Context, filter domain.SignalFilter) (signals []*domain.Signal, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "list", start, err) }()

	query := `
		SELECT id, device_id, timestamp, data_length, data_volume, data,
			   created_at, updated_at
		FROM signals
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.DeviceID != "" {
		query += fmt.Sprintf(" AND device_id = $%d", argNum)
		args = append(args, filter.DeviceID)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetByID retrieves a signal by its storage-assigned identifier.
func (r *SignalRepository) GetByID(ctx context.Context, id string) (signal *domain.Signal, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "get", start, err) }()

	query := `
		SELECT id, device_id, timestamp, data_length, data_volume, data,
			   created_at, updated_at
		FROM signals
		WHERE id = $1
	`

	row := r.db.pool.QueryRow(ctx, query, id)

	signal, err = scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSignalNotFound
		}
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}

	return signal, nil
}

// GetByDeviceID retrieves all signals recorded for a device.
func (r *SignalRepository) GetByDeviceID(ctx context.Context, deviceID string) (signals []*domain.Signal, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "get_by_device", start, err) }()

	query := `
		SELECT id, device_id, timestamp, data_length, data_volume, data,
			   created_at, updated_at
		FROM signals
		WHERE device_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := r.db.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get signals by device: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// Update applies a partial update and returns the updated signal.
// Read-modify-write keeps the partial-update semantics in one place
// (domain.SignalUpdate.Apply) for all backends.
func (r *SignalRepository) Update(ctx context.Context, id string, update *domain.SignalUpdate) (updated *domain.Signal, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "update", start, err) }()

	signal, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update.Apply(signal)

	if err = signal.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(signal.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal data: %w", err)
	}

	query := `
		UPDATE signals SET
			device_id = $2,
			timestamp = $3,
			data_length = $4,
			data_volume = $5,
			data = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.pool.Exec(ctx, query,
		signal.ID,
		signal.DeviceID,
		signal.Timestamp,
		signal.DataLength,
		signal.DataVolume,
		data,
		signal.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateSignal
		}
		return nil, fmt.Errorf("failed to update signal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return nil, domain.ErrSignalNotFound
	}

	return signal, nil
}

// Delete removes a signal and returns the removed record.
func (r *SignalRepository) Delete(ctx context.Context, id string) (signal *domain.Signal, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "delete", start, err) }()

	query := `
		DELETE FROM signals
		WHERE id = $1
		RETURNING id, device_id, timestamp, data_length, data_volume, data,
				  created_at, updated_at
	`

	row := r.db.pool.QueryRow(ctx, query, id)

	signal, err = scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSignalNotFound
		}
		return nil, fmt.Errorf("failed to delete signal: %w", err)
	}

	return signal, nil
}

// scanSignal reads one signal row.
func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var (
		signal domain.Signal
		data   []byte
	)

	err := row.Scan(
		&signal.ID,
		&signal.DeviceID,
		&signal.Timestamp,
		&signal.DataLength,
		&signal.DataVolume,
		&data,
		&signal.CreatedAt,
		&signal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &signal.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signal data: %w", err)
	}

	return &signal, nil
}

// scanSignals reads all signal rows.
func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	signals := []*domain.Signal{}
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signals: %w", err)
	}
	return signals, nil
}
