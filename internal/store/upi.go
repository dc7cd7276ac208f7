package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nexamarket/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrDuplicateAddress = errors.New("address already exists")

const upiColumns = `upi_id, address, display_name, is_active, schedule_start,
	schedule_end, priority, last_used_at, usage_count, daily_limit,
	is_fallback, created_at, updated_at`

func (s *Store) CreateUpi(ctx context.Context, u *models.UpiAddress) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO upi_addresses (
			upi_id, address, display_name, is_active, schedule_start,
			schedule_end, priority, usage_count, daily_limit, is_fallback
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		u.UpiID,
		u.Address,
		u.DisplayName,
		u.IsActive,
		u.ScheduleStart,
		u.ScheduleEnd,
		u.Priority,
		u.UsageCount,
		nullDecimal(u.DailyLimit),
		u.IsFallback,
	)
	return mapUniqueViolation(err)
}

func (s *Store) UpdateUpi(ctx context.Context, u *models.UpiAddress) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE upi_addresses
		SET address=$2, display_name=$3, is_active=$4, schedule_start=$5,
			schedule_end=$6, priority=$7, daily_limit=$8, is_fallback=$9,
			updated_at=now()
		WHERE upi_id=$1
	`,
		u.UpiID,
		u.Address,
		u.DisplayName,
		u.IsActive,
		u.ScheduleStart,
		u.ScheduleEnd,
		u.Priority,
		nullDecimal(u.DailyLimit),
		u.IsFallback,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUpi(ctx context.Context, upiID string) error {
	res, err := s.Pool.Exec(ctx, `DELETE FROM upi_addresses WHERE upi_id=$1`, upiID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetUpi(ctx context.Context, upiID string) (*models.UpiAddress, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+upiColumns+` FROM upi_addresses WHERE upi_id=$1`, upiID)
	u, err := scanUpi(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *Store) ListUpis(ctx context.Context) ([]*models.UpiAddress, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+upiColumns+` FROM upi_addresses ORDER BY priority, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUpis(rows)
}

func (s *Store) ListActiveUpis(ctx context.Context) ([]*models.UpiAddress, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+upiColumns+` FROM upi_addresses WHERE is_active ORDER BY priority, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUpis(rows)
}

// TouchUpi bumps the rotation counters for a chosen address. The usage_count
// predicate is a compare-and-swap: a zero row count means another selection
// got there first and the caller should pick again.
func (s *Store) TouchUpi(ctx context.Context, upiID string, expectedUsage int64, now time.Time) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE upi_addresses
		SET last_used_at=$3, usage_count=usage_count+1, updated_at=now()
		WHERE upi_id=$1 AND usage_count=$2
	`, upiID, expectedUsage, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func collectUpis(rows pgx.Rows) ([]*models.UpiAddress, error) {
	var out []*models.UpiAddress
	for rows.Next() {
		u, err := scanUpi(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUpi(row pgx.Row) (*models.UpiAddress, error) {
	var u models.UpiAddress
	var scheduleStart, scheduleEnd sql.NullString
	var lastUsedAt sql.NullTime
	var dailyLimit decimal.NullDecimal

	err := row.Scan(
		&u.UpiID,
		&u.Address,
		&u.DisplayName,
		&u.IsActive,
		&scheduleStart,
		&scheduleEnd,
		&u.Priority,
		&lastUsedAt,
		&u.UsageCount,
		&dailyLimit,
		&u.IsFallback,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduleStart.Valid {
		u.ScheduleStart = &scheduleStart.String
	}
	if scheduleEnd.Valid {
		u.ScheduleEnd = &scheduleEnd.String
	}
	if lastUsedAt.Valid {
		u.LastUsedAt = &lastUsedAt.Time
	}
	if dailyLimit.Valid {
		u.DailyLimit = &dailyLimit.Decimal
	}
	return &u, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateAddress
	}
	return err
}
