package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"
)

const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// TableStatus is one line of the final per-table summary.
type TableStatus struct {
	Table   string
	Status  string
	Rows    int64
	Elapsed time.Duration
	Reason  string
}

// discoverReport is the JSON shape of discover output. Text output prints
// the same information as plain log lines.
type discoverReport struct {
	Database     string             `json:"database"`
	Schema       string             `json:"schema"`
	DiscoveredAt time.Time          `json:"discovered_at"`
	Tables       []discoverTable    `json:"tables"`
	Views        []string           `json:"views,omitempty"`
	Procedures   []string           `json:"procedures,omitempty"`
	Unsupported  []unsupportedEntry `json:"unsupported_types,omitempty"`
}

type discoverTable struct {
	Name        string   `json:"name"`
	TargetName  string   `json:"target_name"`
	Columns     int      `json:"columns"`
	PrimaryKey  []string `json:"primary_key,omitempty"`
	ForeignKeys int      `json:"foreign_keys,omitempty"`
	Rows        int64    `json:"rows"`
}

type unsupportedEntry struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

// writeDiscoverReport renders a snapshot as text or JSON.
func writeDiscoverReport(w io.Writer, snap *SchemaSnapshot, format string) error {
	unsupported := collectUnsupportedTypes(snap)

	if format == "json" {
		rep := discoverReport{
			Database:     snap.Database,
			Schema:       snap.Name,
			DiscoveredAt: snap.DiscoveredAt,
			Views:        snap.Views,
			Procedures:   snap.Procedures,
		}
		for _, t := range snap.Tables {
			rep.Tables = append(rep.Tables, discoverTable{
				Name:        t.Name,
				TargetName:  t.PGName,
				Columns:     len(t.Columns),
				PrimaryKey:  t.PrimaryKey,
				ForeignKeys: len(t.ForeignKeys),
				Rows:        t.RowCount,
			})
		}
		for _, u := range unsupported {
			rep.Unsupported = append(rep.Unsupported, unsupportedEntry{
				Table: u.Table, Column: u.Column, Type: u.Type,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "schema %s.%s: %d tables\n", snap.Database, snap.Name, len(snap.Tables))
	for _, t := range snap.Tables {
		fmt.Fprintf(w, "  %-32s %3d columns  %10d rows", t.Name, len(t.Columns), t.RowCount)
		if len(t.PrimaryKey) == 0 {
			fmt.Fprintf(w, "  (no primary key)")
		}
		fmt.Fprintln(w)
	}
	for _, u := range unsupported {
		fmt.Fprintf(w, "  WARN: %s.%s has unsupported type %s\n", u.Table, u.Column, u.Type)
	}
	if len(snap.Views) > 0 {
		fmt.Fprintf(w, "views (not migrated): %v\n", snap.Views)
	}
	if len(snap.Procedures) > 0 {
		fmt.Fprintf(w, "procedures (not migrated): %v\n", snap.Procedures)
	}
	return nil
}

// printSummary logs the per-table outcome of a run and returns the number
// of failed tables.
func printSummary(statuses []TableStatus, elapsed time.Duration) int {
	var rows int64
	failedCount := 0
	for _, st := range statuses {
		switch st.Status {
		case StatusOK:
			if st.Elapsed > 0 {
				rate := float64(st.Rows) / st.Elapsed.Seconds()
				log.Printf("  OK   %-32s %10d rows  %8s  %.0f rows/s",
					st.Table, st.Rows, st.Elapsed.Round(time.Millisecond), rate)
			} else {
				log.Printf("  OK   %-32s %10d rows", st.Table, st.Rows)
			}
			rows += st.Rows
		case StatusSkipped:
			log.Printf("  SKIP %-32s %s", st.Table, st.Reason)
		default:
			log.Printf("  FAIL %-32s %s", st.Table, st.Reason)
			failedCount++
		}
	}
	log.Printf("done in %s: %d tables, %d rows, %d failed",
		elapsed.Round(time.Millisecond), len(statuses), rows, failedCount)
	return failedCount
}
