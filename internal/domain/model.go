package domain

import "time"

// Core domain models used internally. API wire shapes live in the HTTP
// adapter; keep these decoupled where helpful.

type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// Status is a Test's lifecycle state. Transitions only move forward;
// completed and failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// User is created on first login and never mutated by this core.
type User struct {
	ID    string
	Email string
	Name  string
}

// Domain is a deduplicated (url, owner) audit target. Device and network
// keep the values of the first submission; resubmitting with different
// parameters does not update them.
type Domain struct {
	ID        int64
	URL       string
	Device    Device
	Network   string
	OwnerID   string
	CreatedAt time.Time
}

// Test is one audit run against a Domain. Metric fields stay nil until the
// test completes; FullReport holds the raw engine report as an opaque blob.
type Test struct {
	ID               int64
	DomainID         int64
	Status           Status
	CreatedAt        time.Time
	PerformanceScore *int
	FCP              *float64
	LCP              *float64
	TBT              *float64
	CLS              *float64
	FullReport       []byte
	Error            string
}

// TestWithDomain joins a Test with its Domain for history listings.
type TestWithDomain struct {
	Test
	URL     string
	Device  Device
	Network string
	OwnerID string
}

// AuditResult is the ephemeral outcome of a single executor invocation. It
// is folded into a Test update and never persisted as its own entity.
type AuditResult struct {
	PerformanceScore int      `json:"performanceScore"`
	FCP              *float64 `json:"fcp"`
	LCP              *float64 `json:"lcp"`
	TBT              *float64 `json:"tbt"`
	CLS              *float64 `json:"cls"`
	FullReport       []byte   `json:"fullReport"`
}

// AuditJob is one queued executor invocation. Result caches the audit
// step's serialized outcome so a retry of the persistence step does not
// re-run the audit.
type AuditJob struct {
	ID          int64
	TestID      int64
	URL         string
	Device      Device
	Network     string
	Status      string
	Attempts    int
	MaxAttempts int
	Result      []byte
	LastError   string
	QueuedAt    time.Time
}
