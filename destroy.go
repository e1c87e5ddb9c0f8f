package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fkEdge is one referencing->referenced dependency between tables in the
// target schema.
type fkEdge struct {
	Child  string
	Parent string
}

// destroySchema drops every table in the target schema and then the schema
// itself. It refuses to run without force; a missing schema is a no-op
// success. Tables drop children first so plain DROP TABLE succeeds; when a
// dependency cycle makes that order impossible the drop falls back to
// CASCADE.
func destroySchema(ctx context.Context, pool *pgxpool.Pool, targetSchema string, force, dryRun bool) (*DestroyResult, error) {
	result := &DestroyResult{}

	if !force {
		return result, &ConfirmationRequiredError{Schema: targetSchema}
	}

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		targetSchema).Scan(&exists)
	if err != nil {
		return result, fmt.Errorf("check schema %s: %w", targetSchema, err)
	}
	if !exists {
		log.Printf("schema %s does not exist, nothing to destroy", targetSchema)
		return result, nil
	}

	tables, err := existingTables(ctx, pool, targetSchema)
	if err != nil {
		return result, err
	}
	edges, err := foreignKeyEdges(ctx, pool, targetSchema)
	if err != nil {
		return result, err
	}

	ordered, cyclic := dropOrder(tables, edges)

	if dryRun {
		for _, name := range ordered {
			log.Printf("would drop table %s.%s", targetSchema, name)
		}
		log.Printf("would drop schema %s", targetSchema)
		result.Tables = ordered
		result.TablesDropped = len(ordered)
		return result, nil
	}

	for _, name := range ordered {
		log.Printf("  dropping %s.%s", targetSchema, name)
		if _, err := pool.Exec(ctx, dropTableStatement(targetSchema, name, cyclic[name])); err != nil {
			return result, fmt.Errorf("drop table %s: %w", name, err)
		}
		result.Tables = append(result.Tables, name)
		result.TablesDropped++
	}

	if _, err := pool.Exec(ctx, dropSchemaStatement(targetSchema)); err != nil {
		return result, fmt.Errorf("drop schema %s: %w", targetSchema, err)
	}
	log.Printf("dropped schema %s (%d tables)", targetSchema, result.TablesDropped)
	return result, nil
}

func dropTableStatement(schema, table string, cascade bool) string {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", pgIdent(schema), pgIdent(table))
	if cascade {
		stmt += " CASCADE"
	}
	return stmt
}

// dropSchemaStatement cascades: the tables are gone by the time it runs,
// but leftover non-table objects (views, sequences created outside this
// tool) must not keep the schema alive.
func dropSchemaStatement(schema string) string {
	return fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgIdent(schema))
}

// foreignKeyEdges reads referencing->referenced table pairs for one schema
// from pg_catalog. Self references are ignored.
func foreignKeyEdges(ctx context.Context, pool *pgxpool.Pool, targetSchema string) ([]fkEdge, error) {
	rows, err := pool.Query(ctx,
		`SELECT child.relname, parent.relname
		 FROM pg_constraint con
		 JOIN pg_class child ON child.oid = con.conrelid
		 JOIN pg_class parent ON parent.oid = con.confrelid
		 JOIN pg_namespace ns ON ns.oid = child.relnamespace
		 WHERE con.contype = 'f' AND ns.nspname = $1`,
		targetSchema)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	var edges []fkEdge
	for rows.Next() {
		var e fkEdge
		if err := rows.Scan(&e.Child, &e.Parent); err != nil {
			return nil, err
		}
		if e.Child != e.Parent {
			edges = append(edges, e)
		}
	}
	return edges, rows.Err()
}

// dropOrder sorts tables so referencing tables drop before the tables they
// reference. Tables stuck in a dependency cycle are appended at the end and
// flagged so the caller drops them with CASCADE. Output is deterministic.
func dropOrder(tables map[string]bool, edges []fkEdge) ([]string, map[string]bool) {
	// referencedBy[p] counts tables still referencing p.
	referencedBy := make(map[string]int)
	parentsOf := make(map[string][]string)
	for _, e := range edges {
		if !tables[e.Child] || !tables[e.Parent] {
			continue
		}
		referencedBy[e.Parent]++
		parentsOf[e.Child] = append(parentsOf[e.Child], e.Parent)
	}

	names := sortedKeys(tables)

	var ordered []string
	dropped := make(map[string]bool)
	for {
		progressed := false
		for _, name := range names {
			if dropped[name] || referencedBy[name] > 0 {
				continue
			}
			ordered = append(ordered, name)
			dropped[name] = true
			progressed = true
			for _, p := range parentsOf[name] {
				referencedBy[p]--
			}
		}
		if !progressed {
			break
		}
	}

	cyclic := make(map[string]bool)
	for _, name := range names {
		if !dropped[name] {
			ordered = append(ordered, name)
			cyclic[name] = true
		}
	}
	return ordered, cyclic
}

func sortedKeys(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
