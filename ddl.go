package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// tableDDL groups one table's generated statements so apply can treat each
// table as an independent unit of failure.
type tableDDL struct {
	Table      string // PG name
	SourceName string
	Statements []string
	Err        error // generation failure (e.g. unsupported type)
}

// fkStatement ties a deferred foreign-key statement back to its owning table.
type fkStatement struct {
	Table string // PG name of the referencing table
	SQL   string
}

// ddlPlan is the full DDL sequence for a snapshot: schema creation, tables
// in dependency order, then all foreign keys as a second pass. The second
// pass exists because discovery order is not a topological sort; deferring
// every FK until all tables exist also makes cyclic references harmless.
type ddlPlan struct {
	TargetSchema string
	SchemaStmt   string
	Tables       []tableDDL
	ForeignKeys  []fkStatement
	Warnings     []string
}

// buildDDLPlan generates target DDL for the whole snapshot. A table whose
// generation fails carries its error in the plan instead of aborting
// sibling tables.
func buildDDLPlan(snap *SchemaSnapshot, targetSchema string) *ddlPlan {
	plan := &ddlPlan{
		TargetSchema: targetSchema,
		SchemaStmt:   fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgIdent(targetSchema)),
	}

	sorted, cycles := sortTablesByDependencies(snap.Tables)
	for _, cycle := range cycles {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("foreign-key cycle involving %s; constraints still apply in the second pass", cycle))
	}

	known := make(map[string]bool, len(snap.Tables))
	for _, t := range snap.Tables {
		known[t.Name] = true
	}

	for _, t := range sorted {
		td := tableDDL{Table: t.PGName, SourceName: t.Name}
		create, err := generateCreateTable(t, targetSchema)
		if err != nil {
			td.Err = err
			plan.Tables = append(plan.Tables, td)
			continue
		}
		td.Statements = append(td.Statements, create)
		td.Statements = append(td.Statements, generateComments(t, targetSchema)...)
		plan.Tables = append(plan.Tables, td)
	}

	// Second pass: foreign keys for every table, after all tables exist.
	for _, t := range sorted {
		for _, fk := range t.ForeignKeys {
			if !known[fk.RefTable] {
				plan.Warnings = append(plan.Warnings, fmt.Sprintf(
					"%s: foreign key %s references %s which is not in schema %s; constraint skipped",
					t.Name, fk.Name, fk.RefTable, snap.Name))
				continue
			}
			plan.ForeignKeys = append(plan.ForeignKeys, fkStatement{
				Table: t.PGName,
				SQL: fmt.Sprintf(
					"ALTER TABLE %s.%s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s (%s)",
					pgIdent(targetSchema), pgIdent(t.PGName),
					pgIdent(fk.Name),
					pgColumnList(fk.Columns),
					pgIdent(targetSchema), pgIdent(fk.RefPGTable),
					pgColumnList(fk.RefColumns),
				),
			})
		}
	}

	return plan
}

// generateCreateTable produces a CREATE TABLE statement with columns in
// source ordinal order, the primary key and unique constraints inline.
func generateCreateTable(t Table, targetSchema string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s.%s (\n", pgIdent(targetSchema), pgIdent(t.PGName))

	var defs []string
	for _, col := range t.Columns {
		pgType, err := mapColumnType(t.Name, col)
		if err != nil {
			return "", err
		}
		def := fmt.Sprintf("  %s %s", pgIdent(col.PGName), pgType)
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("  CONSTRAINT %s PRIMARY KEY (%s)",
			pgIdent(t.PKName), pgColumnList(pgNames(t.PrimaryKey))))
	}
	for _, uc := range t.Unique {
		defs = append(defs, fmt.Sprintf("  CONSTRAINT %s UNIQUE (%s)",
			pgIdent(uc.Name), pgColumnList(uc.Columns)))
	}

	b.WriteString(strings.Join(defs, ",\n"))
	b.WriteString("\n)")
	return b.String(), nil
}

func generateComments(t Table, targetSchema string) []string {
	var stmts []string
	if t.Comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s.%s IS %s",
			pgIdent(targetSchema), pgIdent(t.PGName), pgLiteral(t.Comment)))
	}
	for _, col := range t.Columns {
		if col.Comment != "" {
			stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s.%s IS %s",
				pgIdent(targetSchema), pgIdent(t.PGName), pgIdent(col.PGName), pgLiteral(col.Comment)))
		}
	}
	return stmts
}

// sortTablesByDependencies orders tables so referenced tables come before
// referencing ones. FK edges leaving the table set are ignored. The second
// return value names one table per detected dependency cycle.
func sortTablesByDependencies(tables []Table) ([]Table, []string) {
	byName := make(map[string]*Table, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	var sorted []Table
	var cycles []string
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var visit func(t *Table)
	visit = func(t *Table) {
		if visited[t.Name] {
			return
		}
		visited[t.Name] = true
		inStack[t.Name] = true
		for _, fk := range t.ForeignKeys {
			ref, ok := byName[fk.RefTable]
			if !ok || ref.Name == t.Name {
				continue
			}
			if inStack[ref.Name] {
				cycles = append(cycles, t.Name)
				continue
			}
			visit(ref)
		}
		inStack[t.Name] = false
		sorted = append(sorted, *t)
	}

	for i := range tables {
		visit(&tables[i])
	}
	return sorted, cycles
}

// generateSchemaDDL returns the flattened statement sequence for a snapshot
// together with the warnings produced while planning it.
func generateSchemaDDL(snap *SchemaSnapshot, targetSchema string) ([]string, []string) {
	plan := buildDDLPlan(snap, targetSchema)
	return plan.statements(), plan.Warnings
}

// statements flattens the plan for dry-run emission, skipping tables whose
// generation failed. Output is deterministic for a given snapshot.
func (p *ddlPlan) statements() []string {
	stmts := []string{p.SchemaStmt}
	for _, td := range p.Tables {
		if td.Err != nil {
			continue
		}
		stmts = append(stmts, td.Statements...)
	}
	for _, fk := range p.ForeignKeys {
		stmts = append(stmts, fk.SQL)
	}
	return stmts
}

// writeDDLFile writes the plan as semicolon-terminated statements for
// review before execution. An empty path writes to stdout.
func writeDDLFile(p *ddlPlan, path string) error {
	var b strings.Builder
	for _, stmt := range p.statements() {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}

	if path == "" {
		_, err := os.Stdout.WriteString(b.String())
		return err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write DDL file: %w", err)
	}
	return nil
}

// existingTables lists table names already present in the target schema.
func existingTables(ctx context.Context, pool *pgxpool.Pool, targetSchema string) (map[string]bool, error) {
	rows, err := pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'`,
		targetSchema)
	if err != nil {
		return nil, fmt.Errorf("list target tables: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// applyDDL executes the plan against the target, best-effort per table: one
// table's failure is recorded and the rest proceed. Pre-existing tables are
// refused unless overwrite is set, in which case they are dropped first.
func applyDDL(ctx context.Context, pool *pgxpool.Pool, plan *ddlPlan, overwrite bool) ([]TableStatus, error) {
	if _, err := pool.Exec(ctx, plan.SchemaStmt); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	existing, err := existingTables(ctx, pool, plan.TargetSchema)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool)
	var statuses []TableStatus

	for _, td := range plan.Tables {
		if td.Err != nil {
			log.Printf("  SKIP %s: %v", td.Table, td.Err)
			failed[td.Table] = true
			statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusFailed, Reason: td.Err.Error()})
			continue
		}

		if existing[td.Table] {
			if !overwrite {
				genErr := &DDLGenerationError{Table: td.Table,
					Reason: fmt.Sprintf("table already exists in schema %s (use --force to overwrite)", plan.TargetSchema)}
				log.Printf("  SKIP %s: %v", td.Table, genErr)
				failed[td.Table] = true
				statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusFailed, Reason: genErr.Error()})
				continue
			}
			drop := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s CASCADE",
				pgIdent(plan.TargetSchema), pgIdent(td.Table))
			if _, err := pool.Exec(ctx, drop); err != nil {
				log.Printf("  FAIL %s: drop before overwrite: %v", td.Table, err)
				failed[td.Table] = true
				statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusFailed, Reason: err.Error()})
				continue
			}
		}

		log.Printf("  creating %s.%s", plan.TargetSchema, td.Table)
		if err := execStatements(ctx, pool, td.Table, td.Statements); err != nil {
			failed[td.Table] = true
			statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusFailed, Reason: err.Error()})
			continue
		}
		statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusOK})
	}

	for _, fk := range plan.ForeignKeys {
		if failed[fk.Table] {
			continue
		}
		if _, err := pool.Exec(ctx, fk.SQL); err != nil {
			log.Printf("  FAIL foreign key on %s: %v", fk.Table, err)
			markFailed(statuses, fk.Table, fmt.Sprintf("foreign key: %v", err))
		}
	}

	return statuses, nil
}

func execStatements(ctx context.Context, pool *pgxpool.Pool, table string, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Printf("  FAIL %s: %v\nSQL: %s", table, err, stmt)
			return err
		}
	}
	return nil
}

func markFailed(statuses []TableStatus, table, reason string) {
	for i := range statuses {
		if statuses[i].Table == table {
			statuses[i].Status = StatusFailed
			if statuses[i].Reason == "" {
				statuses[i].Reason = reason
			}
			return
		}
	}
}
