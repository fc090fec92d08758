// Package postgres implements registration.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/internal/registration"
)

const (
	columns = `id, participant_id, participant_name, game, slot_date, slot_time, voucher_code, created_at, used, used_at`

	orderCreated = ` ORDER BY created_at, id`
	orderSlot    = ` ORDER BY to_date(NULLIF(slot_date, ''), 'DD.MM.YYYY') NULLS LAST, slot_time, created_at, id`

	queryCount = `SELECT COUNT(*) FROM registrations WHERE game = $1 AND slot_date = $2 AND slot_time = $3`

	queryInsert = `INSERT INTO registrations (participant_id, participant_name, game, slot_date, slot_time, voucher_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + columns

	// Serializes capacity check and insert per (game, date, time) until the
	// transaction ends.
	querySlotLock = `SELECT pg_advisory_xact_lock(hashtext($1))`

	queryMarkUsed = `UPDATE registrations SET used = TRUE, used_at = NOW()
		WHERE voucher_code = $1 AND NOT used
		RETURNING ` + columns

	pgUniqueViolation = "23505"

	constraintVoucher     = "registrations_voucher_code_key"
	constraintParticipant = "registrations_participant_game_key"
)

// Store is a registration.Store backed by the registrations table.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ registration.Store = (*Store)(nil)

// mapInsertError translates unique violations into registration sentinels by
// constraint name.
func mapInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		switch pqErr.Constraint {
		case constraintVoucher:
			return registration.ErrDuplicateVoucher
		case constraintParticipant:
			return registration.ErrDuplicateRegistration
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return registration.ErrNotFound
	}
	return err
}

func slotLockKey(key registration.SlotKey) string {
	return key.Game + "|" + key.Date + "|" + key.Time
}

// FindByParticipantAndGame returns registration.ErrNotFound when the
// participant holds no registration for game.
func (s *Store) FindByParticipantAndGame(ctx context.Context, participantID int64, game string) (*registration.Registration, error) {
	var r registration.Registration
	err := s.db.GetContext(ctx, &r,
		`SELECT `+columns+` FROM registrations WHERE participant_id = $1 AND game = $2`,
		participantID, game)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListByParticipant returns the participant's registrations, oldest first.
func (s *Store) ListByParticipant(ctx context.Context, participantID int64) ([]registration.Registration, error) {
	var regs []registration.Registration
	if err := s.db.SelectContext(ctx, &regs,
		`SELECT `+columns+` FROM registrations WHERE participant_id = $1`+orderCreated,
		participantID); err != nil {
		return nil, fmt.Errorf("list participant registrations: %w", err)
	}
	return regs, nil
}

// CountForSlot counts registrations in one (game, date, time) slot.
func (s *Store) CountForSlot(ctx context.Context, key registration.SlotKey) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, queryCount, key.Game, key.Date, key.Time); err != nil {
		return 0, fmt.Errorf("count slot: %w", err)
	}
	return n, nil
}

func insert(ctx context.Context, q sqlx.QueryerContext, reg registration.Registration) (*registration.Registration, error) {
	var out registration.Registration
	err := sqlx.GetContext(ctx, q, &out, queryInsert,
		reg.ParticipantID, reg.ParticipantName, reg.Game, reg.SlotDate, reg.SlotTime, reg.VoucherCode)
	if err != nil {
		return nil, mapInsertError(err)
	}
	return &out, nil
}

// Insert stores reg without a capacity check. Unique violations map to
// ErrDuplicateVoucher or ErrDuplicateRegistration by constraint name.
func (s *Store) Insert(ctx context.Context, reg registration.Registration) (*registration.Registration, error) {
	return insert(ctx, s.db, reg)
}

// InsertWithinCapacity serializes writers of one slot with a transaction
// scoped advisory lock, so the count and the insert see the same state.
func (s *Store) InsertWithinCapacity(ctx context.Context, reg registration.Registration, capacity int) (*registration.Registration, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	key := reg.Key()
	if _, err := tx.ExecContext(ctx, querySlotLock, slotLockKey(key)); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	var n int
	if err := tx.GetContext(ctx, &n, queryCount, key.Game, key.Date, key.Time); err != nil {
		return nil, fmt.Errorf("count slot: %w", err)
	}
	if n >= capacity {
		logger.DB.LogAttrs(ctx, slog.LevelDebug, "slot.full",
			slog.String("game", key.Game),
			slog.String("slot_date", key.Date),
			slog.String("slot_time", key.Time),
			slog.Int("capacity", capacity),
		)
		return nil, registration.ErrSlotFull
	}

	out, err := insert(ctx, tx, reg)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", mapInsertError(err))
	}
	committed = true
	return out, nil
}

// FindByVoucherCode returns registration.ErrNotFound for unknown codes.
func (s *Store) FindByVoucherCode(ctx context.Context, code string) (*registration.Registration, error) {
	var r registration.Registration
	err := s.db.GetContext(ctx, &r, `SELECT `+columns+` FROM registrations WHERE voucher_code = $1`, code)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// VoucherExists reports whether code is already assigned.
func (s *Store) VoucherExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM registrations WHERE voucher_code = $1)`, code)
	if err != nil {
		return false, fmt.Errorf("voucher exists: %w", err)
	}
	return exists, nil
}

// ListAll returns every registration in the requested order.
func (s *Store) ListAll(ctx context.Context, order registration.Order) ([]registration.Registration, error) {
	clause := orderCreated
	if order == registration.OrderSlot {
		clause = orderSlot
	}
	var regs []registration.Registration
	if err := s.db.SelectContext(ctx, &regs, `SELECT `+columns+` FROM registrations`+clause); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// ListActive returns unredeemed registrations in slot order.
func (s *Store) ListActive(ctx context.Context) ([]registration.Registration, error) {
	var regs []registration.Registration
	if err := s.db.SelectContext(ctx, &regs, `SELECT `+columns+` FROM registrations WHERE NOT used`+orderSlot); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}
	return regs, nil
}

// MarkUsed flips used in a single conditional UPDATE. When no row changes it
// tells a missing voucher apart from an already redeemed one.
func (s *Store) MarkUsed(ctx context.Context, code string) (*registration.Registration, error) {
	var r registration.Registration
	err := s.db.GetContext(ctx, &r, queryMarkUsed, code)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark used: %w", err)
	}

	var used bool
	err = s.db.GetContext(ctx, &used, `SELECT used FROM registrations WHERE voucher_code = $1`, code)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, registration.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("mark used: %w", err)
	default:
		return nil, registration.ErrAlreadyUsed
	}
}
