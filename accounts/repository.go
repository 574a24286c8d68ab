package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type db interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// User is a row of the usuarios table.
type User struct {
	ID           string         `db:"id"`
	TenantID     sql.NullString `db:"tenant_id"`
	Nome         string         `db:"nome"`
	Email        string         `db:"email"`
	Telefone     sql.NullString `db:"telefone_e164"`
	SenhaHash    string         `db:"senha_hash"`
	Papel        string         `db:"papel"`
	Ativo        bool           `db:"ativo"`
	CriadoEm     time.Time      `db:"criado_em"`
	AtualizadoEm time.Time      `db:"atualizado_em"`
}

// IsSuperAdmin reports whether the user belongs to no tenant.
func (u User) IsSuperAdmin() bool {
	return !u.TenantID.Valid
}

const userColumns = `id, tenant_id, nome, email, telefone_e164, senha_hash, papel, ativo, criado_em, atualizado_em`

// Repository reads accounts from usuarios.
type Repository struct {
	db db
}

// NewRepository creates a repository reading through db.
func NewRepository(db db) *Repository {
	return &Repository{
		db: db,
	}
}

// GetByEmail returns the user with the given email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM usuarios WHERE email = $1", email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// ListSuperAdmins returns every user without a tenant, ordered by email.
func (r *Repository) ListSuperAdmins(ctx context.Context) ([]User, error) {
	var users []User
	err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM usuarios WHERE tenant_id IS NULL ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to list super admins: %w", err)
	}
	return users, nil
}
