package domain

import "time"

// Readiness states. Degraded means certificates are still issued but with reduced fidelity, for
// example as HTML while the PDF engine is down.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// RenderMode is the artifact format new certificates are currently issued in.
type RenderMode string

const (
	RenderModePDF          RenderMode = "pdf"
	RenderModeHTMLFallback RenderMode = "html-fallback"
)

// SystemHealthCheck is the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for the readiness endpoint.
type SystemHealthReport struct {
	Status     string
	Checks     map[string]SystemHealthCheck
	RenderMode RenderMode
	// SigningEnabled reports whether QR payloads carry an HMAC signature.
	SigningEnabled bool
	Version        string
	CommitSHA      string
	Environment    string
	Uptime         time.Duration
	GeneratedAt    time.Time
}

// AuditLogEntry is an append-only record of a privileged action such as a certificate issuance.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}
