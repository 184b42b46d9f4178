package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

type captureEvents struct {
	events []string
	fields []map[string]any
}

func (c *captureEvents) log(_ context.Context, event string, fields map[string]any) {
	c.events = append(c.events, event)
	c.fields = append(c.fields, fields)
}

func TestAuditLogServiceRecordSanitizesAndHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	logs := &captureEvents{}
	fixed := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Clock: func() time.Time {
			return fixed
		},
		IDProvider: func() string { return "log-1" },
		Logger:     logs.log,
		HashSalt:   "pepper:",
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:                 "  user:registrar-1  ",
		Action:                " certificate.issued ",
		TargetRef:             " /certificates/CERT-ev1-01ABC ",
		Severity:              "Warn",
		RequestID:             " req-123 ",
		Metadata:              map[string]any{"requesterEmail": "Clerk@example.com", "eventId": "ev1", "duplicate": true, "registrarNote": "called back"},
		SensitiveMetadataKeys: []string{"RegistrarNote"},
		IPAddress:             "203.0.113.42 ",
		UserAgent:             "TestAgent\r\n",
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]

	if entry.ID != "log-1" {
		t.Fatalf("expected generated id, got %q", entry.ID)
	}
	if entry.Actor != "user:registrar-1" || entry.ActorType != "user" {
		t.Fatalf("unexpected actor %q (%q)", entry.Actor, entry.ActorType)
	}
	if entry.Action != "certificate.issued" {
		t.Fatalf("unexpected action %q", entry.Action)
	}
	if entry.TargetRef != "/certificates/CERT-ev1-01ABC" {
		t.Fatalf("unexpected target ref: %q", entry.TargetRef)
	}
	if entry.Severity != "warn" {
		t.Fatalf("unexpected severity: %q", entry.Severity)
	}
	if entry.RequestID != "req-123" {
		t.Fatalf("expected trimmed request id, got %q", entry.RequestID)
	}
	if entry.UserAgent != "TestAgent" {
		t.Fatalf("expected sanitized user agent, got %q", entry.UserAgent)
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Fatalf("expected CreatedAt %s, got %s", fixed, entry.CreatedAt)
	}
	if !strings.HasPrefix(entry.IPHash, auditHashPrefix) {
		t.Fatalf("expected hashed ip, got %q", entry.IPHash)
	}
	if email, _ := entry.Metadata["requesterEmail"].(string); !strings.HasPrefix(email, auditHashPrefix) {
		t.Fatalf("expected hashed email, got %#v", entry.Metadata["requesterEmail"])
	}
	if note, _ := entry.Metadata["registrarNote"].(string); !strings.HasPrefix(note, auditHashPrefix) {
		t.Fatalf("expected caller-listed key hashed, got %#v", entry.Metadata["registrarNote"])
	}
	if entry.Metadata["eventId"] != "ev1" || entry.Metadata["duplicate"] != true {
		t.Fatalf("expected metadata preserved, got %#v", entry.Metadata)
	}
	if len(logs.events) != 0 {
		t.Fatalf("expected no log events, got %v", logs.events)
	}
}

func TestAuditLogServiceRecordLogsOnFailure(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("boom")}
	logs := &captureEvents{}

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Logger:     logs.log,
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "system",
		Action:    "test.action",
		TargetRef: "resource:1",
	})

	if len(logs.events) != 1 || logs.events[0] != "audit.append.failed" {
		t.Fatalf("expected failure event, got %v", logs.events)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected append invoked once, got %d", len(repo.entries))
	}
	if repo.entries[0].ID == "" {
		t.Fatalf("expected default id provider to assign an id")
	}
}

func TestAuditLogServiceHashIsStableAndKeyed(t *testing.T) {
	newService := func(salt string) *auditLogService {
		svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: &stubAuditRepo{}, HashSalt: salt})
		if err != nil {
			t.Fatalf("new audit log service: %v", err)
		}
		return svc.(*auditLogService)
	}
	impl := newService("pepper")

	first := map[string]any{"a": 1, "b": "two"}
	second := map[string]any{"b": "two", "a": 1}
	if impl.hash(first) != impl.hash(second) {
		t.Fatalf("expected stable hash for equal maps")
	}
	if impl.hash("x") == impl.hash("y") {
		t.Fatalf("expected distinct hashes for distinct values")
	}
	if impl.hash("ET-0001") == newService("other").hash("ET-0001") {
		t.Fatalf("expected the salt to key the hash")
	}
	// NFC and NFD spellings of a name hash equally.
	if impl.hash("Jos\u00e9") != impl.hash("Jose\u0301") {
		t.Fatalf("expected normalised input to hash equally")
	}
}

func TestAuditLogServiceHashesPersonalDataKeys(t *testing.T) {
	repo := &stubAuditRepo{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:  "user:registrar-1",
		Action: "certificate.issued",
		Metadata: map[string]any{
			"motherIdNumber": "ET-12345",
			"phone":          "+251911000000",
			"eventType":      "birth",
		},
	})

	meta := repo.entries[0].Metadata
	for _, key := range []string{"motherIdNumber", "phone"} {
		if value, _ := meta[key].(string); !strings.HasPrefix(value, auditHashPrefix) {
			t.Fatalf("expected %s hashed, got %#v", key, meta[key])
		}
	}
	if meta["eventType"] != "birth" {
		t.Fatalf("expected non-personal metadata kept, got %#v", meta["eventType"])
	}
}

func TestAuditTextKeepsWholeRunes(t *testing.T) {
	if got := auditText("  \u1230\u120b\u121d\u1275\x07  ", 3); got != "\u1230\u120b\u121d" {
		t.Fatalf("expected three Ethiopic runes, got %q", got)
	}
	if got := auditText("agent\x00name", 64); got != "agentname" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
}

func TestNormalizeActorType(t *testing.T) {
	cases := map[string]string{
		"user:1":    "user",
		"/users/1":  "user",
		"system":    "system",
		"system:cr": "system",
		"public":    "public",
		"anonymous": "public",
		"robot":     actorTypeUnknown,
	}
	for actor, want := range cases {
		if got := normalizeActorType("", actor); got != want {
			t.Fatalf("normalizeActorType(%q) = %q, want %q", actor, got, want)
		}
	}
	if got := normalizeActorType("SYSTEM", "user:1"); got != "system" {
		t.Fatalf("expected explicit actor type to win, got %q", got)
	}
}
