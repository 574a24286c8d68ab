// Package accounts manages the platform-wide super admin accounts stored in
// usuarios with no tenant.
package accounts

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/database"
)

// RoleSuperAdmin is the papel value of platform administrators.
const RoleSuperAdmin = "SUPER_ADMIN"

var (
	errEmptyEmail    = errors.New("super admin email is empty")
	errEmptyPassword = errors.New("super admin password is empty")
)

const upsertSuperAdminQuery = `INSERT INTO usuarios (tenant_id, nome, email, senha_hash, papel, ativo)
VALUES (NULL, $1, $2, $3, $4, true)
ON CONFLICT (email) DO UPDATE SET
    nome = EXCLUDED.nome,
    senha_hash = EXCLUDED.senha_hash,
    papel = EXCLUDED.papel,
    atualizado_em = clock_timestamp()`

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UpsertStep builds the statement that creates the super admin or, when the
// email is taken, replaces its name, password and role.
func UpsertStep(admin config.SuperAdmin) (database.Step, error) {
	email := strings.TrimSpace(admin.Email)
	if email == "" {
		return database.Step{}, errEmptyEmail
	}

	hash, err := HashPassword(admin.Password)
	if err != nil {
		return database.Step{}, fmt.Errorf("failed to prepare super admin %s: %w", email, err)
	}

	return database.Exec(upsertSuperAdminQuery, admin.Name, email, hash, RoleSuperAdmin), nil
}
