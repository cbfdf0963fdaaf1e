package authinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/senderpro/senderpro/pkg/iam/auth"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// PostgresUserDirectory is a read-only view over the users table owned by the
// user-management side. The credential layer only resolves identities here.
type PostgresUserDirectory struct {
	db *sqlx.DB
}

// NewPostgresUserDirectory creates the directory view.
func NewPostgresUserDirectory(db *sqlx.DB) auth.UserDirectory {
	return &PostgresUserDirectory{db: db}
}

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	Name         string `db:"name"`
	PasswordHash string `db:"password_hash"`
}

func (d *PostgresUserDirectory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var row userRow
	query := `SELECT id, email, name, password_hash FROM users WHERE email = $1`
	if err := d.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidCredential()
		}
		return nil, storeError(err, "failed to find user by email")
	}
	return row.toDomain(), nil
}

func (d *PostgresUserDirectory) FindByID(ctx context.Context, id kernel.UserID) (*auth.User, error) {
	var row userRow
	query := `SELECT id, email, name, password_hash FROM users WHERE id = $1`
	if err := d.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidCredential()
		}
		return nil, storeError(err, "failed to find user by id")
	}
	return row.toDomain(), nil
}

func (r userRow) toDomain() *auth.User {
	return &auth.User{
		ID:           kernel.NewUserID(r.ID),
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
	}
}
