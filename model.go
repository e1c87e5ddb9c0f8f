package main

import "time"

// Column represents a single column from Snowflake INFORMATION_SCHEMA.
type Column struct {
	Name       string // Snowflake name, usually upper case
	PGName     string // folded PostgreSQL name
	DataType   string // upper-cased Snowflake type, e.g. "NUMBER", "TIMESTAMP_TZ"
	CharMaxLen int64
	Precision  int64
	Scale      int64
	Nullable   bool
	Default    *string
	Comment    string
	OrdinalPos int
}

// UniqueConstraint represents a named UNIQUE constraint (may span multiple columns).
type UniqueConstraint struct {
	Name    string
	Columns []string // PG column names, in constraint order
}

// ForeignKey represents a Snowflake foreign key constraint.
type ForeignKey struct {
	Name       string
	Columns    []string // local PG column names
	RefTable   string   // referenced Snowflake table name
	RefPGTable string   // referenced PG table name
	RefColumns []string // referenced PG column names
}

// Table holds the full discovered definition of a Snowflake table.
type Table struct {
	Name        string
	PGName      string
	Columns     []Column
	PKName      string
	PrimaryKey  []string // Snowflake column names; empty when the table has no PK
	Unique      []UniqueConstraint
	ForeignKeys []ForeignKey
	Comment     string
	RowCount    int64 // approximate, taken at discovery time
}

// SchemaSnapshot is an immutable point-in-time record of a discovered
// Snowflake schema. A fresh snapshot is taken per invocation; drift between
// separate runs is not detected.
type SchemaSnapshot struct {
	Name         string // source schema name
	Database     string
	Tables       []Table
	Views        []string // names only; views are not migrated
	Procedures   []string // names only; procedures are not migrated
	DiscoveredAt time.Time
}

// tableByName returns the snapshot table with the given Snowflake name.
func (s *SchemaSnapshot) tableByName(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// JobStatus is the lifecycle state of a TransferJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in-progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ResumeCursor marks the position after the last committed batch. Key is the
// ordering-key value for single-column primary keys; Offset is the committed
// row count and is used when no keyset predicate is possible.
type ResumeCursor struct {
	Key    any
	Offset int64
}

// TransferJob tracks one table's transfer. Created at transfer start,
// updated after every committed batch, discarded at process exit.
type TransferJob struct {
	SourceTable string
	TargetTable string
	BatchSize   int
	Resume      *ResumeCursor
	Status      JobStatus
}

// TransferResult summarizes one table's transfer.
type TransferResult struct {
	Table         string
	RowsCopied    int64
	BatchesFailed int
	Elapsed       time.Duration
}

// RowsPerSecond returns the effective transfer rate.
func (r TransferResult) RowsPerSecond() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.RowsCopied) / secs
}

// DestroyResult summarizes a schema teardown.
type DestroyResult struct {
	TablesDropped int
	Tables        []string // PG table names, in drop order
}
