// Package migrations holds the built-in migration descriptors and loads
// descriptors from files.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/gestasaas/gestamigrate/accounts"
	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/database"
)

// Built-in descriptor names.
const (
	SuperAdminsName = "super-admins"
	TokensTableName = "tokens-table"
)

// ErrUnknownMigration is returned by Lookup for names that are not built in.
var ErrUnknownMigration = errors.New("unknown migration")

//go:embed sql/super_admins/*.sql sql/tokens_table/*.sql
var scripts embed.FS

func embeddedSteps(dir string) ([]database.Step, error) {
	sub, err := fs.Sub(scripts, "sql/"+dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded scripts %s: %w", dir, err)
	}

	steps, err := database.ParseScripts(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded scripts %s: %w", dir, err)
	}

	return steps, nil
}

// SuperAdmins makes usuarios.tenant_id optional, moves email uniqueness from
// per-tenant to global with per-tenant partial indexes, and upserts every
// given admin.
func SuperAdmins(admins []config.SuperAdmin) (database.Descriptor, error) {
	steps, err := embeddedSteps("super_admins")
	if err != nil {
		return database.Descriptor{}, err
	}

	for _, admin := range admins {
		step, err := accounts.UpsertStep(admin)
		if err != nil {
			return database.Descriptor{}, fmt.Errorf("failed to build super admin upsert: %w", err)
		}
		steps = append(steps, step)
	}

	return superAdmins(steps, len(admins)), nil
}

func superAdmins(steps []database.Step, admins int) database.Descriptor {
	return database.Descriptor{
		Name:        SuperAdminsName,
		Description: fmt.Sprintf("global unique email on usuarios and %d super admin(s)", admins),
		Steps:       steps,
		Verify: database.Verification{
			Tables: []database.TableCheck{{
				Name:        "usuarios",
				Columns:     []string{"tenant_id", "email", "telefone_e164"},
				Constraints: []string{"usuarios_email_key"},
				Indexes:     []string{"usuarios_email_key", "idx_usuarios_tenant_email", "idx_usuarios_tenant_telefone"},
			}},
		},
	}
}

// TokensTable creates the password-reset and email-verification token table.
func TokensTable() (database.Descriptor, error) {
	steps, err := embeddedSteps("tokens_table")
	if err != nil {
		return database.Descriptor{}, err
	}

	return database.Descriptor{
		Name:        TokensTableName,
		Description: "tokens_recuperacao table, tipo_token enum and atualizado_em trigger",
		Steps:       steps,
		Verify: database.Verification{
			Tables: []database.TableCheck{{
				Name: "tokens_recuperacao",
				Columns: []string{
					"id", "usuario_id", "token", "tipo", "usado", "expira_em", "criado_em", "atualizado_em",
				},
				Constraints: []string{
					"tokens_recuperacao_pkey", "tokens_recuperacao_token_key", "tokens_recuperacao_usuario_id_fkey",
				},
				Indexes: []string{
					"idx_tokens_recuperacao_usuario_id", "idx_tokens_recuperacao_token",
					"idx_tokens_recuperacao_tipo", "idx_tokens_recuperacao_expira_em",
				},
			}},
			Enums: []database.EnumCheck{{
				Name:   "tipo_token",
				Labels: []string{"PASSWORD_RESET", "EMAIL_VERIFICATION"},
			}},
		},
	}, nil
}

// Names lists the built-in descriptors.
func Names() []string {
	names := []string{SuperAdminsName, TokensTableName}
	slices.Sort(names)
	return names
}

// Lookup returns the built-in descriptor with the given name.
func Lookup(name string, cfg config.Config) (database.Descriptor, error) {
	switch name {
	case SuperAdminsName:
		return SuperAdmins(cfg.SuperAdmins)
	case TokensTableName:
		return TokensTable()
	default:
		return database.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownMigration, name)
	}
}

// Entry describes a built-in descriptor for listing.
type Entry struct {
	Name        string
	Description string
	Statements  int
}

// Catalog describes every built-in. Super admin upserts are counted, not
// built, so no password is hashed or validated.
func Catalog(cfg config.Config) ([]Entry, error) {
	ddl, err := embeddedSteps("super_admins")
	if err != nil {
		return nil, err
	}
	admins := superAdmins(ddl, len(cfg.SuperAdmins))

	tokens, err := TokensTable()
	if err != nil {
		return nil, err
	}

	entries := []Entry{
		{Name: admins.Name, Description: admins.Description, Statements: len(admins.Statements()) + len(cfg.SuperAdmins)},
		{Name: tokens.Name, Description: tokens.Description, Statements: len(tokens.Statements())},
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })

	return entries, nil
}
