package database

import (
	"context"
	"fmt"
	"slices"
)

// Querier runs read-only catalog queries.
type Querier interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

const defaultSchema = "public"

// TableCheck names a table and the objects expected on it.
type TableCheck struct {
	Name        string   `yaml:"name"`
	Columns     []string `yaml:"columns"`
	Constraints []string `yaml:"constraints"`
	Indexes     []string `yaml:"indexes"`
}

// EnumCheck names an enum type and the labels expected on it.
type EnumCheck struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
}

// Verification lists what should exist after a descriptor has run.
type Verification struct {
	Schema string       `yaml:"schema"`
	Tables []TableCheck `yaml:"tables"`
	Enums  []EnumCheck  `yaml:"enums"`
}

// IsEmpty reports whether there is nothing to check.
func (v Verification) IsEmpty() bool {
	return len(v.Tables) == 0 && len(v.Enums) == 0
}

// Column is a row of information_schema.columns.
type Column struct {
	Name       string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

// Nullable reports whether the column accepts NULL.
func (c Column) Nullable() bool {
	return c.IsNullable == "YES"
}

// Constraint is a row of information_schema.table_constraints.
type Constraint struct {
	Name string `db:"constraint_name"`
	Type string `db:"constraint_type"`
}

// Index is a row of pg_indexes.
type Index struct {
	Name       string `db:"indexname"`
	Definition string `db:"indexdef"`
}

// TableReport is what the catalogs say about one table.
type TableReport struct {
	Name        string
	Exists      bool
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
	Missing     []string
	Errors      []error
}

// EnumReport is what the catalogs say about one enum type.
type EnumReport struct {
	Name    string
	Exists  bool
	Labels  []string
	Missing []string
	Err     error
}

// VerificationReport collects table and enum reports.
type VerificationReport struct {
	Tables []TableReport
	Enums  []EnumReport
}

// OK reports whether every expected object was found and every query succeeded.
func (r VerificationReport) OK() bool {
	for _, table := range r.Tables {
		if !table.Exists || len(table.Missing) > 0 || len(table.Errors) > 0 {
			return false
		}
	}

	for _, enum := range r.Enums {
		if !enum.Exists || len(enum.Missing) > 0 || enum.Err != nil {
			return false
		}
	}

	return true
}

// Verifier inspects the catalogs. It never modifies the database and never
// fails: query errors are recorded in the report.
type Verifier struct {
	db Querier
}

// NewVerifier creates a verifier reading through db.
func NewVerifier(db Querier) *Verifier {
	return &Verifier{db: db}
}

// Verify runs every check and returns what the catalogs reported.
func (v *Verifier) Verify(ctx context.Context, checks Verification) VerificationReport {
	schema := checks.Schema
	if schema == "" {
		schema = defaultSchema
	}

	var report VerificationReport
	for _, table := range checks.Tables {
		report.Tables = append(report.Tables, v.verifyTable(ctx, schema, table))
	}
	for _, enum := range checks.Enums {
		report.Enums = append(report.Enums, v.verifyEnum(ctx, schema, enum))
	}

	return report
}

func (v *Verifier) verifyTable(ctx context.Context, schema string, check TableCheck) TableReport {
	report := TableReport{Name: check.Name}

	err := v.db.GetContext(ctx, &report.Exists, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schema, check.Name)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to check table existence: %w", err))
		return report
	}

	if !report.Exists {
		return report
	}

	err = v.db.SelectContext(ctx, &report.Columns, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, check.Name)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to list columns: %w", err))
	}

	err = v.db.SelectContext(ctx, &report.Constraints, `
		SELECT constraint_name, constraint_type
		FROM information_schema.table_constraints
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY constraint_name`, schema, check.Name)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to list constraints: %w", err))
	}

	err = v.db.SelectContext(ctx, &report.Indexes, `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = $2
		ORDER BY indexname`, schema, check.Name)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to list indexes: %w", err))
	}

	for _, name := range check.Columns {
		if !slices.ContainsFunc(report.Columns, func(c Column) bool { return c.Name == name }) {
			report.Missing = append(report.Missing, "column "+name)
		}
	}
	for _, name := range check.Constraints {
		if !slices.ContainsFunc(report.Constraints, func(c Constraint) bool { return c.Name == name }) {
			report.Missing = append(report.Missing, "constraint "+name)
		}
	}
	for _, name := range check.Indexes {
		if !slices.ContainsFunc(report.Indexes, func(i Index) bool { return i.Name == name }) {
			report.Missing = append(report.Missing, "index "+name)
		}
	}

	return report
}

func (v *Verifier) verifyEnum(ctx context.Context, schema string, check EnumCheck) EnumReport {
	report := EnumReport{Name: check.Name}

	err := v.db.SelectContext(ctx, &report.Labels, `
		SELECT e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1 AND t.typname = $2
		ORDER BY e.enumsortorder`, schema, check.Name)
	if err != nil {
		report.Err = fmt.Errorf("failed to list enum labels: %w", err)
		return report
	}

	report.Exists = len(report.Labels) > 0

	for _, label := range check.Labels {
		if !slices.Contains(report.Labels, label) {
			report.Missing = append(report.Missing, "label "+label)
		}
	}

	return report
}
