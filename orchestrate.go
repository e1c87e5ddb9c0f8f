package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Phase is the orchestrator's position in a run.
type Phase string

const (
	PhaseDiscovering  Phase = "discovering"
	PhaseBuilding     Phase = "building"
	PhaseTransferring Phase = "transferring"
	PhaseDone         Phase = "done"
)

// Options holds everything one invocation needs. No package-level state, so
// several migrations can run in one process.
type Options struct {
	Database     string
	SourceSchema string
	TargetSchema string
	TableFilter  string // single table name, empty means all
	BatchSize    int
	DryRun       bool
	Overwrite    bool
	Output       string // DDL file for build dry runs
	Progress     bool
}

// Orchestrator drives a run over opened connections. It is fatal only on
// discovery or connection failure; individual table failures accumulate into
// the summary and the caller decides the exit code.
type Orchestrator struct {
	Source *sql.DB
	Target *pgxpool.Pool
	Opts   Options
	phase  Phase
}

func newOrchestrator(src *sql.DB, target *pgxpool.Pool, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Orchestrator{Source: src, Target: target, Opts: opts}
}

// Discover takes a fresh snapshot of the source schema.
func (o *Orchestrator) Discover(ctx context.Context) (*SchemaSnapshot, error) {
	o.phase = PhaseDiscovering
	snap, err := discoverSchema(ctx, o.Source, o.Opts.Database, o.Opts.SourceSchema, o.Opts.TableFilter)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Build creates the target schema and tables from a snapshot. In dry-run
// mode the DDL is written out and nothing touches the target.
func (o *Orchestrator) Build(ctx context.Context, snap *SchemaSnapshot) ([]TableStatus, error) {
	o.phase = PhaseBuilding
	plan := buildDDLPlan(snap, o.Opts.TargetSchema)
	for _, w := range plan.Warnings {
		log.Printf("WARN: %s", w)
	}

	if o.Opts.DryRun {
		if err := writeDDLFile(plan, o.Opts.Output); err != nil {
			return nil, err
		}
		var statuses []TableStatus
		for _, td := range plan.Tables {
			if td.Err != nil {
				statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusFailed, Reason: td.Err.Error()})
			} else {
				statuses = append(statuses, TableStatus{Table: td.Table, Status: StatusOK})
			}
		}
		return statuses, nil
	}

	log.Printf("building schema %s (%d tables)", o.Opts.TargetSchema, len(plan.Tables))
	return applyDDL(ctx, o.Target, plan, o.Opts.Overwrite)
}

// Transfer copies data for every table in the snapshot. Table failures are
// isolated: each failed table is recorded and its siblings continue.
func (o *Orchestrator) Transfer(ctx context.Context, snap *SchemaSnapshot) ([]TableStatus, error) {
	return o.transfer(ctx, snap, nil)
}

func (o *Orchestrator) transfer(ctx context.Context, snap *SchemaSnapshot, skip map[string]bool) ([]TableStatus, error) {
	o.phase = PhaseTransferring

	if o.Opts.DryRun {
		var statuses []TableStatus
		var total int64
		for _, t := range snap.Tables {
			log.Printf("  would transfer %-32s %10d rows", t.Name, t.RowCount)
			total += t.RowCount
			statuses = append(statuses, TableStatus{Table: t.PGName, Status: StatusOK, Rows: t.RowCount})
		}
		log.Printf("dry run: %d rows across %d tables, nothing written", total, len(snap.Tables))
		return statuses, nil
	}

	opts := transferOptions{
		SourceSchema: snap.Name,
		TargetSchema: o.Opts.TargetSchema,
		BatchSize:    o.Opts.BatchSize,
		Progress:     o.Opts.Progress,
	}

	if opts.Progress {
		uiprogress.Start()
		defer uiprogress.Stop()
	}

	var statuses []TableStatus
	for _, t := range snap.Tables {
		if skip[t.PGName] {
			statuses = append(statuses, TableStatus{Table: t.PGName, Status: StatusSkipped, Reason: "schema build failed"})
			continue
		}

		job := &TransferJob{
			SourceTable: t.Name,
			TargetTable: t.PGName,
			BatchSize:   opts.BatchSize,
			Status:      JobPending,
		}
		result, err := transferTable(ctx, o.Source, o.Target, t, job, opts)
		if err != nil && job.Resume != nil {
			// Retry once from the cursor; it sits after the last batch this
			// run settled, committed or skipped.
			log.Printf("  WARN %s: %v; resuming from last processed batch", t.Name, err)
			var retry *TransferResult
			retry, err = transferTable(ctx, o.Source, o.Target, t, job, opts)
			if retry != nil {
				result.RowsCopied += retry.RowsCopied
				result.BatchesFailed += retry.BatchesFailed
				result.Elapsed += retry.Elapsed
			}
		}

		st := TableStatus{Table: t.PGName, Rows: result.RowsCopied, Elapsed: result.Elapsed}
		switch {
		case err != nil:
			st.Status = StatusFailed
			st.Reason = err.Error()
		case result.BatchesFailed > 0:
			st.Status = StatusFailed
			st.Reason = fmt.Sprintf("%d batches failed", result.BatchesFailed)
		default:
			st.Status = StatusOK
		}
		statuses = append(statuses, st)
	}

	return verifyRowCounts(ctx, o.Target, o.Opts.TargetSchema, snap, statuses), nil
}

// Migrate runs build then transfer on one snapshot, so both phases see the
// same table set. Tables whose build failed are skipped in the transfer
// phase rather than copied into a half-created target.
func (o *Orchestrator) Migrate(ctx context.Context) ([]TableStatus, error) {
	start := time.Now()
	snap, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("found %d tables in %s.%s", len(snap.Tables), snap.Database, snap.Name)

	buildStatuses, err := o.Build(ctx, snap)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool)
	for _, st := range buildStatuses {
		if st.Status == StatusFailed {
			skip[st.Table] = true
		}
	}

	transferStatuses, err := o.transfer(ctx, snap, skip)
	if err != nil {
		return nil, err
	}

	// Merge: a table failed in either phase reports as failed once.
	merged := transferStatuses
	for _, bs := range buildStatuses {
		if bs.Status != StatusFailed {
			continue
		}
		for i := range merged {
			if merged[i].Table == bs.Table {
				merged[i].Status = StatusFailed
				merged[i].Reason = bs.Reason
			}
		}
	}

	o.phase = PhaseDone
	log.Printf("migration of %s.%s finished in %s", snap.Database, snap.Name, time.Since(start).Round(time.Millisecond))
	return merged, nil
}
