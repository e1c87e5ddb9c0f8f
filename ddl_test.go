package main

import (
	"strings"
	"testing"
)

func testSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{
		Name:     "PUBLIC",
		Database: "SALES",
		Tables: []Table{
			{
				Name:   "ORDERS",
				PGName: "orders",
				Columns: []Column{
					{Name: "ID", PGName: "id", DataType: "NUMBER", Precision: 18, Nullable: false, OrdinalPos: 1},
					{Name: "CUSTOMER_ID", PGName: "customer_id", DataType: "NUMBER", Precision: 18, Nullable: false, OrdinalPos: 2},
					{Name: "NOTE", PGName: "note", DataType: "VARCHAR", CharMaxLen: 200, Nullable: true, OrdinalPos: 3},
				},
				PKName:     "orders_pkey",
				PrimaryKey: []string{"ID"},
				ForeignKeys: []ForeignKey{
					{Name: "orders_customer_fk", Columns: []string{"customer_id"},
						RefTable: "CUSTOMERS", RefPGTable: "customers", RefColumns: []string{"id"}},
				},
				Comment: "sales orders",
			},
			{
				Name:   "CUSTOMERS",
				PGName: "customers",
				Columns: []Column{
					{Name: "ID", PGName: "id", DataType: "NUMBER", Precision: 18, Nullable: false, OrdinalPos: 1},
					{Name: "EMAIL", PGName: "email", DataType: "VARCHAR", CharMaxLen: 320, Nullable: false, OrdinalPos: 2},
				},
				PKName:     "customers_pkey",
				PrimaryKey: []string{"ID"},
				Unique:     []UniqueConstraint{{Name: "customers_email_key", Columns: []string{"email"}}},
			},
		},
	}
}

func TestGenerateCreateTable(t *testing.T) {
	snap := testSnapshot()
	sql, err := generateCreateTable(snap.Tables[1], "public")
	if err != nil {
		t.Fatalf("generateCreateTable: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE public.customers (",
		"id bigint NOT NULL",
		"email varchar(320) NOT NULL",
		"CONSTRAINT customers_pkey PRIMARY KEY (id)",
		"CONSTRAINT customers_email_key UNIQUE (email)",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("DDL missing %q:\n%s", want, sql)
		}
	}
}

func TestGenerateCreateTableNullableColumn(t *testing.T) {
	snap := testSnapshot()
	sql, err := generateCreateTable(snap.Tables[0], "public")
	if err != nil {
		t.Fatalf("generateCreateTable: %v", err)
	}
	if strings.Contains(sql, "note varchar(200) NOT NULL") {
		t.Errorf("nullable column emitted as NOT NULL:\n%s", sql)
	}
}

func TestBuildDDLPlanOrderAndForeignKeys(t *testing.T) {
	snap := testSnapshot()
	plan := buildDDLPlan(snap, "public")

	if len(plan.Tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(plan.Tables))
	}
	// customers must be created before orders, which references it.
	if plan.Tables[0].Table != "customers" || plan.Tables[1].Table != "orders" {
		t.Errorf("wrong dependency order: %s, %s", plan.Tables[0].Table, plan.Tables[1].Table)
	}

	if len(plan.ForeignKeys) != 1 {
		t.Fatalf("got %d foreign keys, want 1", len(plan.ForeignKeys))
	}
	fk := plan.ForeignKeys[0]
	if fk.Table != "orders" {
		t.Errorf("foreign key attributed to %s", fk.Table)
	}
	for _, want := range []string{
		"ALTER TABLE public.orders",
		"ADD CONSTRAINT orders_customer_fk",
		"FOREIGN KEY (customer_id)",
		"REFERENCES public.customers (id)",
	} {
		if !strings.Contains(fk.SQL, want) {
			t.Errorf("FK statement missing %q:\n%s", want, fk.SQL)
		}
	}
}

func TestBuildDDLPlanComments(t *testing.T) {
	plan := buildDDLPlan(testSnapshot(), "public")
	var all string
	for _, td := range plan.Tables {
		all += strings.Join(td.Statements, "\n") + "\n"
	}
	if !strings.Contains(all, "COMMENT ON TABLE public.orders IS 'sales orders'") {
		t.Errorf("table comment missing:\n%s", all)
	}
}

func TestBuildDDLPlanDanglingReference(t *testing.T) {
	snap := testSnapshot()
	snap.Tables = snap.Tables[:1] // drop CUSTOMERS; ORDERS still references it

	plan := buildDDLPlan(snap, "public")
	if len(plan.ForeignKeys) != 0 {
		t.Errorf("dangling FK should be skipped, got %d", len(plan.ForeignKeys))
	}
	found := false
	for _, w := range plan.Warnings {
		if strings.Contains(w, "CUSTOMERS") {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning about dangling reference: %v", plan.Warnings)
	}
}

func TestBuildDDLPlanUnsupportedTypeIsolated(t *testing.T) {
	snap := testSnapshot()
	snap.Tables[0].Columns = append(snap.Tables[0].Columns,
		Column{Name: "SHAPE", PGName: "shape", DataType: "GEOMETRY", OrdinalPos: 4})

	plan := buildDDLPlan(snap, "public")
	var failed, ok int
	for _, td := range plan.Tables {
		if td.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("got %d failed, %d ok; want 1 failed, 1 ok", failed, ok)
	}
}

func TestBuildDDLPlanCycleWarning(t *testing.T) {
	snap := testSnapshot()
	snap.Tables[1].ForeignKeys = []ForeignKey{
		{Name: "customers_last_order_fk", Columns: []string{"id"},
			RefTable: "ORDERS", RefPGTable: "orders", RefColumns: []string{"id"}},
	}

	plan := buildDDLPlan(snap, "public")
	if len(plan.Warnings) == 0 {
		t.Fatal("expected a cycle warning")
	}
	// Both FK statements are still present in the second pass.
	if len(plan.ForeignKeys) != 2 {
		t.Errorf("got %d foreign keys, want 2", len(plan.ForeignKeys))
	}
}

func TestStatementsDeterministic(t *testing.T) {
	a, _ := generateSchemaDDL(testSnapshot(), "public")
	b, _ := generateSchemaDDL(testSnapshot(), "public")
	if len(a) != len(b) {
		t.Fatalf("statement counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("statement %d differs:\n%s\n%s", i, a[i], b[i])
		}
	}
	if a[0] != "CREATE SCHEMA IF NOT EXISTS public" {
		t.Errorf("first statement = %q", a[0])
	}
	for _, stmt := range a {
		if strings.HasSuffix(stmt, ";") {
			t.Errorf("statement carries trailing semicolon: %q", stmt)
		}
	}
}

func TestStatementsReservedWordIdentifiers(t *testing.T) {
	snap := &SchemaSnapshot{
		Name: "PUBLIC",
		Tables: []Table{{
			Name:   "ORDER",
			PGName: "order",
			Columns: []Column{
				{Name: "USER", PGName: "user", DataType: "VARCHAR", CharMaxLen: 10, Nullable: true, OrdinalPos: 1},
			},
		}},
	}
	stmts, _ := generateSchemaDDL(snap, "public")
	joined := strings.Join(stmts, "\n")
	if !strings.Contains(joined, `CREATE TABLE public."order"`) {
		t.Errorf("reserved table name not quoted:\n%s", joined)
	}
	if !strings.Contains(joined, `"user" varchar(10)`) {
		t.Errorf("reserved column name not quoted:\n%s", joined)
	}
}
