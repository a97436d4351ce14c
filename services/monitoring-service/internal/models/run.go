package models

import "time"

// ErrorKind classifies a per-client or per-check failure for operators.
type ErrorKind string

const (
	ErrorKindDataFetch     ErrorKind = "data_fetch"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindCheck         ErrorKind = "check"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindInternal      ErrorKind = "internal"
	ErrorKindAlert         ErrorKind = "alert"
)

type ClientRunStatus string

const (
	ClientRunSuccess ClientRunStatus = "success"
	ClientRunPartial ClientRunStatus = "partial"
	ClientRunFailed  ClientRunStatus = "failed"
	ClientRunSkipped ClientRunStatus = "skipped"
)

type RunError struct {
	ClientID string    `json:"client_id"`
	Channel  Channel   `json:"channel,omitempty"`
	CheckID  string    `json:"check_id,omitempty"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

type ClientRunResult struct {
	ClientID        string          `json:"client_id"`
	Status          ClientRunStatus `json:"status"`
	ChecksRun       int             `json:"checks_run"`
	AlertsCreated   int             `json:"alerts_created"`
	AlertsSkipped   int             `json:"alerts_skipped"`
	AlertsResolved  int64           `json:"alerts_resolved"`
	FatigueSignals  int             `json:"fatigue_signals"`
	SignalsPromoted int             `json:"signals_promoted"`
	Errors          []RunError      `json:"errors,omitempty"`
	DurationMs      int64           `json:"duration_ms"`
}

// RunRequest is the input of one monitoring pass.
type RunRequest struct {
	ClientIDs   []string `json:"client_ids,omitempty"`
	TriggeredBy string   `json:"triggered_by,omitempty"`
}

// RunResult aggregates one monitoring pass across clients.
type RunResult struct {
	RunID            string            `json:"run_id"`
	TriggeredBy      string            `json:"triggered_by,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	ClientsProcessed int               `json:"clients_processed"`
	ClientsSucceeded int               `json:"clients_succeeded"`
	ClientsPartial   int               `json:"clients_partial"`
	ClientsFailed    int               `json:"clients_failed"`
	ClientsSkipped   int               `json:"clients_skipped"`
	ChecksRun        int               `json:"checks_run"`
	AlertsCreated    int               `json:"alerts_created"`
	AlertsSkipped    int               `json:"alerts_skipped"`
	AlertsResolved   int64             `json:"alerts_resolved"`
	FatigueSignals   int               `json:"fatigue_signals"`
	Clients          []ClientRunResult `json:"clients"`
	Errors           []RunError        `json:"errors,omitempty"`
}

// Principal is the caller of an exposed entry point.
type Principal struct {
	UserID    string   `json:"user_id"`
	Role      string   `json:"role"`
	ClientIDs []string `json:"client_ids,omitempty"`
}

// SystemPrincipal is used for scheduler triggered runs.
var SystemPrincipal = Principal{UserID: "system", Role: "admin"}
