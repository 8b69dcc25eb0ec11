package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// UserRepository provides access to bot accounts.
type UserRepository interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*entity.User, error)
	GetOrCreate(ctx context.Context, tgID int64, username string, freeUses int) (*entity.User, error)
	SetTemplate(ctx context.Context, tgID int64, template *string) error
	DecrementFreeUses(ctx context.Context, tgID int64) (int, error)
	SetPro(ctx context.Context, tgID int64, isPro bool, expiry *time.Time) error
	List(ctx context.Context, limit int) ([]*entity.User, error)
}

type userRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &userRepository{db: db, logger: logger}
}

const userColumns = `id, tg_id, username, free_uses, is_pro, expiry_date, template_text, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		u        entity.User
		expiry   sql.NullTime
		template sql.NullString
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FreeUses, &u.IsPro, &expiry, &template, &u.CreatedAt); err != nil {
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		u.ExpiryDate = &t
	}
	if template.Valid {
		s := template.String
		u.TemplateText = &s
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (r *userRepository) GetByTelegramID(ctx context.Context, tgID int64) (*entity.User, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.rebind(`SELECT `+userColumns+` FROM users WHERE tg_id = ?`), tgID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", tgID, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get user", "tg_id", tgID, "error", err)
		return nil, fmt.Errorf("get user: %w: %v", common.ErrDatabase, err)
	}
	return u, nil
}

func (r *userRepository) GetOrCreate(ctx context.Context, tgID int64, username string, freeUses int) (*entity.User, error) {
	_, err := r.db.SQL.ExecContext(ctx,
		r.db.rebind(`INSERT INTO users (tg_id, username, free_uses, is_pro, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (tg_id) DO NOTHING`),
		tgID, username, freeUses, false, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("failed to create user", "tg_id", tgID, "error", err)
		return nil, fmt.Errorf("create user: %w: %v", common.ErrDatabase, err)
	}
	return r.GetByTelegramID(ctx, tgID)
}

// SetTemplate stores template; nil clears it.
func (r *userRepository) SetTemplate(ctx context.Context, tgID int64, template *string) error {
	var v any
	if template != nil {
		v = *template
	}
	return r.update(ctx, "set template", `UPDATE users SET template_text = ? WHERE tg_id = ?`, v, tgID)
}

// DecrementFreeUses takes one use, never going below zero, and returns what remains.
func (r *userRepository) DecrementFreeUses(ctx context.Context, tgID int64) (int, error) {
	if _, err := r.db.SQL.ExecContext(ctx,
		r.db.rebind(`UPDATE users SET free_uses = free_uses - 1 WHERE tg_id = ? AND free_uses > 0`), tgID); err != nil {
		r.logger.Error("failed to decrement free uses", "tg_id", tgID, "error", err)
		return 0, fmt.Errorf("decrement free uses: %w: %v", common.ErrDatabase, err)
	}
	u, err := r.GetByTelegramID(ctx, tgID)
	if err != nil {
		return 0, err
	}
	return u.FreeUses, nil
}

func (r *userRepository) SetPro(ctx context.Context, tgID int64, isPro bool, expiry *time.Time) error {
	var v any
	if expiry != nil {
		v = expiry.UTC()
	}
	return r.update(ctx, "set pro", `UPDATE users SET is_pro = ?, expiry_date = ? WHERE tg_id = ?`, isPro, v, tgID)
}

func (r *userRepository) List(ctx context.Context, limit int) ([]*entity.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ?`), limit)
	if err != nil {
		r.logger.Error("failed to list users", "error", err)
		return nil, fmt.Errorf("list users: %w: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w: %v", common.ErrDatabase, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *userRepository) update(ctx context.Context, op, q string, args ...any) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		r.logger.Error("failed to "+op, "error", err)
		return fmt.Errorf("%s: %w: %v", op, common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, common.ErrDatabase, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return nil
}
