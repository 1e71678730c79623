package engine

import "fmt"

// ConfigError means the run configuration is invalid. It is raised before
// any I/O happens.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid migration config: %s", e.Message)
}

// ScanError means the source or target was unreachable during gap detection.
// Finding gaps is not an error; failing to look for them is.
type ScanError struct {
	Phase string // "pre" or "post"
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s-migration gap scan failed: %v", e.Phase, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// BatchWriteError means an individual record failed to write to the target.
type BatchWriteError struct {
	Table    string
	RecordID string
	Err      error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("failed to write record %s/%s: %v", e.Table, e.RecordID, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// ValidationError means a validation check itself could not run, e.g. the
// target fetch-back failed. This is distinct from a check running and
// reporting a mismatch.
type ValidationError struct {
	Check string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation check %s could not run: %v", e.Check, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RollbackError means one or more journaled records could not be deleted
// during rollback. The target is left in an inconsistent state and needs
// manual intervention, so this is reported as its own terminal condition.
type RollbackError struct {
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback incomplete: %v", e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
