package pg

import (
	"context"
	"database/sql"
	"errors"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/ids"
)

const accountColumns = `id, email, password_hash, name, system_role, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*auth.Account, error) {
	var (
		acc    auth.Account
		role   string
		status string
	)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.Name, &role, &status, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	acc.Role = auth.Role(role)
	acc.Status = auth.Status(status)
	return &acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *auth.Account) error {
	id := ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, name, system_role, status)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, id, acc.Email, acc.PasswordHash, acc.Name, string(acc.Role), string(acc.Status)).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	acc.ID = id
	return nil
}

func (s *Store) FindAccountByID(ctx context.Context, id string) (*auth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return acc, err
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return acc, err
}

func (s *Store) ListAccounts(ctx context.Context, filter auth.AccountFilter) ([]*auth.Account, int, error) {
	status := string(filter.Status)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from users where ($1 = '' or status = $1)
	`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select `+accountColumns+`
		from users
		where ($1 = '' or status = $1)
		order by created_at desc, id desc
		limit $2 offset $3
	`, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []*auth.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status auth.Status) (*auth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `
		update users set status = $2, updated_at = now()
		where id = $1
		returning `+accountColumns, id, string(status)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return acc, err
}

// --- refresh token slots ---

const tokenColumns = `user_id, refresh_token, is_verified, created_at, updated_at`

func scanToken(row rowScanner) (*auth.TokenRecord, error) {
	var (
		rec     auth.TokenRecord
		refresh sql.NullString
	)
	if err := row.Scan(&rec.AccountID, &refresh, &rec.IsVerified, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if refresh.Valid {
		rec.RefreshToken = &refresh.String
	}
	return &rec, nil
}

func (s *Store) CreateTokenRecord(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `insert into user_tokens (user_id) values ($1)`, accountID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) FindTokenRecord(ctx context.Context, accountID string) (*auth.TokenRecord, error) {
	rec, err := scanToken(s.db.QueryRowContext(ctx, `select `+tokenColumns+` from user_tokens where user_id = $1`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return rec, err
}

func (s *Store) FindTokenByRefresh(ctx context.Context, refreshToken string) (*auth.TokenRecord, error) {
	rec, err := scanToken(s.db.QueryRowContext(ctx, `select `+tokenColumns+` from user_tokens where refresh_token = $1`, refreshToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return rec, err
}

// SetRefreshToken upserts so a login still works when registration never
// wrote the record.
func (s *Store) SetRefreshToken(ctx context.Context, accountID, refreshToken string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_tokens (user_id, refresh_token)
		values ($1, $2)
		on conflict (user_id) do update
		set refresh_token = excluded.refresh_token, updated_at = now()
	`, accountID, refreshToken)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// RotateRefreshToken is a compare-and-swap on the slot.
func (s *Store) RotateRefreshToken(ctx context.Context, accountID, current, next string) error {
	res, err := s.db.ExecContext(ctx, `
		update user_tokens set refresh_token = $3, updated_at = now()
		where user_id = $1 and refresh_token = $2
	`, accountID, current, next)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
