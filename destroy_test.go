package main

import (
	"context"
	"errors"
	"testing"
)

func TestDropOrderChildrenFirst(t *testing.T) {
	tables := map[string]bool{"orders": true, "customers": true, "order_items": true}
	edges := []fkEdge{
		{Child: "orders", Parent: "customers"},
		{Child: "order_items", Parent: "orders"},
	}

	ordered, cyclic := dropOrder(tables, edges)
	if len(cyclic) != 0 {
		t.Errorf("unexpected cycles: %v", cyclic)
	}
	pos := make(map[string]int)
	for i, name := range ordered {
		pos[name] = i
	}
	if pos["order_items"] > pos["orders"] {
		t.Errorf("order_items must drop before orders: %v", ordered)
	}
	if pos["orders"] > pos["customers"] {
		t.Errorf("orders must drop before customers: %v", ordered)
	}
}

func TestDropOrderCycleFallsBackToCascade(t *testing.T) {
	tables := map[string]bool{"a": true, "b": true, "standalone": true}
	edges := []fkEdge{
		{Child: "a", Parent: "b"},
		{Child: "b", Parent: "a"},
	}

	ordered, cyclic := dropOrder(tables, edges)
	if len(ordered) != 3 {
		t.Fatalf("got %d tables, want 3", len(ordered))
	}
	if ordered[0] != "standalone" {
		t.Errorf("acyclic table should drop first: %v", ordered)
	}
	if !cyclic["a"] || !cyclic["b"] {
		t.Errorf("cycle members should be flagged for CASCADE: %v", cyclic)
	}
	if cyclic["standalone"] {
		t.Error("standalone wrongly flagged cyclic")
	}
}

func TestDropOrderIgnoresEdgesOutsideSchema(t *testing.T) {
	tables := map[string]bool{"only": true}
	edges := []fkEdge{{Child: "only", Parent: "elsewhere"}}

	ordered, cyclic := dropOrder(tables, edges)
	if len(ordered) != 1 || ordered[0] != "only" || len(cyclic) != 0 {
		t.Errorf("dropOrder = %v, %v", ordered, cyclic)
	}
}

func TestDropStatements(t *testing.T) {
	if got := dropTableStatement("public", "orders", false); got != "DROP TABLE IF EXISTS public.orders" {
		t.Errorf("dropTableStatement = %q", got)
	}
	if got := dropTableStatement("public", "orders", true); got != "DROP TABLE IF EXISTS public.orders CASCADE" {
		t.Errorf("dropTableStatement cascade = %q", got)
	}
	// Non-table objects left in the schema must not block the final drop.
	if got := dropSchemaStatement("public"); got != "DROP SCHEMA IF EXISTS public CASCADE" {
		t.Errorf("dropSchemaStatement = %q", got)
	}
}

func TestDestroyRequiresForce(t *testing.T) {
	_, err := destroySchema(context.Background(), nil, "public", false, false)
	var cre *ConfirmationRequiredError
	if !errors.As(err, &cre) {
		t.Fatalf("expected ConfirmationRequiredError, got %v", err)
	}
	if cre.Schema != "public" {
		t.Errorf("error names schema %q", cre.Schema)
	}
}
