//go:build linux

package migrations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/gestasaas/gestamigrate/accounts"
	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/database"
	"github.com/gestasaas/gestamigrate/migrations"
)

// usuarios as it looked before super admins existed.
const legacySchema = `
CREATE TABLE usuarios (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id UUID NOT NULL,
    nome VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL,
    telefone_e164 VARCHAR(20),
    senha_hash VARCHAR(255) NOT NULL,
    papel VARCHAR(50) NOT NULL DEFAULT 'USER',
    ativo BOOLEAN NOT NULL DEFAULT true,
    criado_em TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
    atualizado_em TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
    CONSTRAINT usuarios_tenant_id_email_key UNIQUE (tenant_id, email)
);
`

func TestBuiltinMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctr, err := postgres.Run(
		ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("gestasaas"),
		postgres.WithUsername("gestasaas"),
		postgres.WithPassword("gestasaas"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to initialize database: %s", err.Error())
	}

	dbURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err.Error())
	}

	setup, err := database.OpenDSN(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %s", err.Error())
	}
	if _, err := setup.ExecContext(ctx, legacySchema); err != nil {
		t.Fatalf("failed to create legacy schema: %s", err.Error())
	}
	_ = setup.Close()

	err = ctr.Snapshot(ctx)
	if err != nil {
		t.Fatalf("failed to create snapshot: %s", err.Error())
	}

	open := func(ctx context.Context) (application.Session, error) {
		return database.OpenDSN(ctx, dbURL)
	}

	admins := []config.SuperAdmin{{Name: "Ana", Email: "ana@gesta.dev", Password: "one"}}

	t.Run("super admins is idempotent", func(t *testing.T) {
		t.Cleanup(func() {
			err = ctr.Restore(ctx)
			if err != nil {
				t.Fatalf("failed to restore db: %s", err.Error())
			}
		})

		d, err := migrations.SuperAdmins(admins)
		if err != nil {
			t.Fatalf("failed to build descriptor: %s", err.Error())
		}

		app := application.New(open)

		first, err := app.Migrate(ctx, d)
		if err != nil {
			t.Fatalf("first run failed: %s", err.Error())
		}
		if first.State.Skipped != 0 || first.State.Applied != 6 {
			t.Errorf("first run: unexpected counters %s", first.State)
		}
		if first.Report == nil || !first.Report.OK() {
			t.Errorf("first run: expected clean verification, got %+v", first.Report)
		}

		second, err := app.Migrate(ctx, d)
		if err != nil {
			t.Fatalf("second run failed: %s", err.Error())
		}

		// DROP NOT NULL and the upsert succeed again; every other change is reported as already applied.
		expected := []database.Outcome{
			database.OutcomeApplied,
			database.OutcomeSkipped,
			database.OutcomeSkipped,
			database.OutcomeSkipped,
			database.OutcomeSkipped,
			database.OutcomeApplied,
		}
		for i, outcome := range expected {
			if second.Results[i].Outcome != outcome {
				t.Errorf("second run: statement %d expected %s, got %s", i+1, outcome, second.Results[i].Outcome)
			}
		}

		db, err := database.OpenDSN(ctx, dbURL)
		if err != nil {
			t.Fatalf("failed to open database: %s", err.Error())
		}
		defer func() { _ = db.Close() }()

		admin, err := accounts.NewRepository(db).GetByEmail(ctx, "ana@gesta.dev")
		if err != nil {
			t.Fatalf("failed to load admin: %s", err.Error())
		}
		if !admin.IsSuperAdmin() || admin.Papel != accounts.RoleSuperAdmin || !accounts.CheckPassword(admin.SenhaHash, "one") {
			t.Errorf("unexpected admin row: %+v", admin)
		}
	})

	t.Run("email uniqueness rules", func(t *testing.T) {
		t.Cleanup(func() {
			err = ctr.Restore(ctx)
			if err != nil {
				t.Fatalf("failed to restore db: %s", err.Error())
			}
		})

		d, err := migrations.SuperAdmins(nil)
		if err != nil {
			t.Fatalf("failed to build descriptor: %s", err.Error())
		}
		if _, err := application.New(open).Migrate(ctx, d); err != nil {
			t.Fatalf("failed to migrate: %s", err.Error())
		}

		db, err := database.OpenDSN(ctx, dbURL)
		if err != nil {
			t.Fatalf("failed to open database: %s", err.Error())
		}
		defer func() { _ = db.Close() }()

		insert := func(tenantID any, email string) error {
			_, err := db.ExecContext(ctx,
				"INSERT INTO usuarios (tenant_id, nome, email, senha_hash) VALUES ($1, 'x', $2, 'h')",
				tenantID, email)
			return err
		}

		isUniqueViolation := func(err error) bool {
			code, ok := database.SQLState(err)
			return ok && code == "23505"
		}

		tenantA := "11111111-1111-1111-1111-111111111111"
		tenantB := "22222222-2222-2222-2222-222222222222"

		if err := insert(nil, "root@gesta.dev"); err != nil {
			t.Fatalf("failed to insert first super admin: %s", err.Error())
		}
		if err := insert(nil, "root@gesta.dev"); !isUniqueViolation(err) {
			t.Errorf("expected two tenantless rows with the same email to violate uniqueness, got %v", err)
		}

		if err := insert(tenantA, "user@tenant.dev"); err != nil {
			t.Fatalf("failed to insert tenant user: %s", err.Error())
		}
		if err := insert(tenantA, "user@tenant.dev"); !isUniqueViolation(err) {
			t.Errorf("expected same tenant and email to violate uniqueness, got %v", err)
		}

		// Global uniqueness also rejects the same email under a different tenant.
		err = insert(tenantB, "user@tenant.dev")
		if !isUniqueViolation(err) {
			t.Errorf("expected global email uniqueness across tenants, got %v", err)
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint != "usuarios_email_key" {
			t.Errorf("expected usuarios_email_key violation, got %s", pqErr.Constraint)
		}

		if err := insert(tenantB, "other@tenant.dev"); err != nil {
			t.Errorf("expected distinct email under another tenant to succeed, got %v", err)
		}
	})

	t.Run("super admin upsert replaces the row", func(t *testing.T) {
		t.Cleanup(func() {
			err = ctr.Restore(ctx)
			if err != nil {
				t.Fatalf("failed to restore db: %s", err.Error())
			}
		})

		app := application.New(open)

		first, err := migrations.SuperAdmins([]config.SuperAdmin{{Name: "Ana", Email: "ana@gesta.dev", Password: "one"}})
		if err != nil {
			t.Fatalf("failed to build descriptor: %s", err.Error())
		}
		if _, err := app.Migrate(ctx, first); err != nil {
			t.Fatalf("first upsert failed: %s", err.Error())
		}

		db, err := database.OpenDSN(ctx, dbURL)
		if err != nil {
			t.Fatalf("failed to open database: %s", err.Error())
		}
		defer func() { _ = db.Close() }()

		repo := accounts.NewRepository(db)
		before, err := repo.GetByEmail(ctx, "ana@gesta.dev")
		if err != nil {
			t.Fatalf("failed to load admin: %s", err.Error())
		}

		time.Sleep(10 * time.Millisecond)

		second, err := migrations.SuperAdmins([]config.SuperAdmin{{Name: "Ana Souza", Email: "ana@gesta.dev", Password: "two"}})
		if err != nil {
			t.Fatalf("failed to build descriptor: %s", err.Error())
		}
		if _, err := app.Migrate(ctx, second); err != nil {
			t.Fatalf("second upsert failed: %s", err.Error())
		}

		admins, err := repo.ListSuperAdmins(ctx)
		if err != nil {
			t.Fatalf("failed to list admins: %s", err.Error())
		}
		if len(admins) != 1 {
			t.Fatalf("expected exactly one row, got %d", len(admins))
		}

		after := admins[0]
		if after.Nome != "Ana Souza" {
			t.Errorf("expected updated name, got %q", after.Nome)
		}
		if !accounts.CheckPassword(after.SenhaHash, "two") {
			t.Error("expected password to be replaced")
		}
		if !after.AtualizadoEm.After(before.AtualizadoEm) {
			t.Errorf("expected atualizado_em to advance, before %s after %s", before.AtualizadoEm, after.AtualizadoEm)
		}
		if after.ID != before.ID {
			t.Error("expected the same row to be updated")
		}
	})

	t.Run("tokens table", func(t *testing.T) {
		t.Cleanup(func() {
			err = ctr.Restore(ctx)
			if err != nil {
				t.Fatalf("failed to restore db: %s", err.Error())
			}
		})

		d, err := migrations.TokensTable()
		if err != nil {
			t.Fatalf("failed to build descriptor: %s", err.Error())
		}

		app := application.New(open)

		first, err := app.Migrate(ctx, d)
		if err != nil {
			t.Fatalf("first run failed: %s", err.Error())
		}
		if first.Report == nil || !first.Report.OK() {
			t.Errorf("expected clean verification, got %+v", first.Report)
		}

		second, err := app.Migrate(ctx, d)
		if err != nil {
			t.Fatalf("second run failed: %s", err.Error())
		}
		// The enum block and CREATE OR REPLACE FUNCTION are idempotent on their own.
		if second.State.Skipped != 6 || second.State.Applied != 2 {
			t.Errorf("second run: unexpected counters %s", second.State)
		}

		db, err := database.OpenDSN(ctx, dbURL)
		if err != nil {
			t.Fatalf("failed to open database: %s", err.Error())
		}
		defer func() { _ = db.Close() }()

		var userID string
		err = db.GetContext(ctx, &userID,
			"INSERT INTO usuarios (tenant_id, nome, email, senha_hash) VALUES (gen_random_uuid(), 'x', 'x@x.dev', 'h') RETURNING id")
		if err != nil {
			t.Fatalf("failed to insert user: %s", err.Error())
		}

		var created time.Time
		err = db.GetContext(ctx, &created,
			"INSERT INTO tokens_recuperacao (usuario_id, token, tipo, expira_em) VALUES ($1, 'tok', 'PASSWORD_RESET', now() + interval '1 hour') RETURNING atualizado_em",
			userID)
		if err != nil {
			t.Fatalf("failed to insert token: %s", err.Error())
		}

		time.Sleep(10 * time.Millisecond)

		var updated time.Time
		err = db.GetContext(ctx, &updated, "UPDATE tokens_recuperacao SET usado = true WHERE token = 'tok' RETURNING atualizado_em")
		if err != nil {
			t.Fatalf("failed to update token: %s", err.Error())
		}
		if !updated.After(created) {
			t.Errorf("expected trigger to stamp atualizado_em, before %s after %s", created, updated)
		}

		if _, err := db.ExecContext(ctx, "DELETE FROM usuarios WHERE id = $1", userID); err != nil {
			t.Fatalf("failed to delete user: %s", err.Error())
		}

		var remaining int
		if err := db.GetContext(ctx, &remaining, "SELECT count(*) FROM tokens_recuperacao"); err != nil {
			t.Fatalf("failed to count tokens: %s", err.Error())
		}
		if remaining != 0 {
			t.Errorf("expected tokens to cascade on user delete, got %d", remaining)
		}
	})
}
