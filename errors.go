package main

import "fmt"

// SchemaNotFoundError aborts the whole run: the source schema has no tables.
type SchemaNotFoundError struct {
	Schema string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("schema %q not found or contains no tables", e.Schema)
}

// UnsupportedTypeError is fatal for the offending table's DDL generation but
// does not abort sibling tables.
type UnsupportedTypeError struct {
	Table  string
	Column string
	Type   string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported Snowflake type %q on %s.%s", e.Type, e.Table, e.Column)
}

// DDLGenerationError marks a single table's DDL as failed (generation or
// application); other tables proceed.
type DDLGenerationError struct {
	Table  string
	Reason string
}

func (e *DDLGenerationError) Error() string {
	return fmt.Sprintf("DDL for table %s: %s", e.Table, e.Reason)
}

// BatchTransferError records one failed batch with its row-key range. The
// batch is skipped and the table is marked failed; siblings are unaffected.
type BatchTransferError struct {
	Table    string
	Batch    int
	FirstKey any
	LastKey  any
	Err      error
}

func (e *BatchTransferError) Error() string {
	return fmt.Sprintf("table %s batch %d (keys %v..%v): %v",
		e.Table, e.Batch, e.FirstKey, e.LastKey, e.Err)
}

func (e *BatchTransferError) Unwrap() error { return e.Err }

// ConfirmationRequiredError aborts destroy entirely when --force was not given.
type ConfirmationRequiredError struct {
	Schema string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("destroying schema %q requires --force", e.Schema)
}
