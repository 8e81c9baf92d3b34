package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Panel errors

// ErrUpstreamUnavailable indicates the remote panel could not be reached or
// answered with a server error. Callers treat it as "no data this tick".
type ErrUpstreamUnavailable struct {
	Endpoint string
	Err      error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("panel unavailable at %s: %v", e.Endpoint, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// ErrMalformedRecord indicates a single account record failed normalization.
// The record is dropped; the rest of the batch continues.
type ErrMalformedRecord struct {
	UUID string
	Err  error
}

func (e *ErrMalformedRecord) Error() string {
	return fmt.Sprintf("malformed account record %s: %v", e.UUID, e.Err)
}

func (e *ErrMalformedRecord) Unwrap() error {
	return e.Err
}

type ErrAccountNotFound struct {
	UUID string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account not found on panel: %s", e.UUID)
}

// Notification errors

// ErrDeliveryFailed indicates a send or edit against the notification
// transport failed for one recipient. The run continues with the rest.
type ErrDeliveryFailed struct {
	ChatID int64
	Err    error
}

func (e *ErrDeliveryFailed) Error() string {
	return fmt.Sprintf("delivery to chat %d failed: %v", e.ChatID, e.Err)
}

func (e *ErrDeliveryFailed) Unwrap() error {
	return e.Err
}

// ErrStaleTarget indicates an editable message no longer exists at the
// transport (deleted by the recipient, or identical content rejected).
// The local reference must be cleared so the next cycle sends fresh.
type ErrStaleTarget struct {
	ChatID    int64
	MessageID int
}

func (e *ErrStaleTarget) Error() string {
	return fmt.Sprintf("message %d in chat %d no longer editable", e.MessageID, e.ChatID)
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
