package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/textutil"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

const (
	auditHashPrefix   = "hmac-sha256:"
	actorTypeUnknown  = "unknown"
	auditSeverityInfo = "info"
)

// personalDataSuffixes name metadata keys that always carry personal data on vital records. A key
// matches when its folded form ends with one of them, so "motherIdNumber" and "requesterEmail"
// are both covered.
var personalDataSuffixes = []string{"idnumber", "nationalid", "email", "phone", "phonenumber"}

// actorPrefixes maps actor reference prefixes to actor types.
var actorPrefixes = []struct {
	prefix    string
	actorType string
}{
	{"user:", "user"},
	{"/users/", "user"},
	{"system:", "system"},
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	Clock      func() time.Time
	IDProvider func() string
	Logger     func(ctx context.Context, event string, fields map[string]any)
	// HashSalt keys the HMAC applied to IP addresses and personal metadata.
	HashSalt string
}

type auditLogService struct {
	repo    repositories.AuditLogRepository
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
	hashKey []byte
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}
	svc := &auditLogService{
		repo:    deps.Repository,
		clock:   deps.Clock,
		newID:   deps.IDProvider,
		logger:  deps.Logger,
		hashKey: []byte(deps.HashSalt),
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.newID == nil {
		svc.newID = func() string { return ulid.Make().String() }
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	return svc, nil
}

// Record persists an audit log entry with personal data hashed. Repository failures are logged
// and never returned so the audited operation still completes.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.entry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append.failed", map[string]any{
			"action": entry.Action,
			"target": entry.TargetRef,
			"error":  err.Error(),
		})
	}
}

func (s *auditLogService) entry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}
	entry := domain.AuditLogEntry{
		ID:        s.newID(),
		Actor:     auditText(record.Actor, 160),
		ActorType: normalizeActorType(record.ActorType, record.Actor),
		Action:    auditText(record.Action, 120),
		TargetRef: auditText(record.TargetRef, 200),
		Severity:  normalizeSeverity(record.Severity),
		RequestID: auditText(record.RequestID, 128),
		UserAgent: auditText(record.UserAgent, 256),
		Metadata:  s.metadata(record.Metadata, record.SensitiveMetadataKeys),
		CreatedAt: occurred.UTC(),
	}
	if ip := strings.TrimSpace(record.IPAddress); ip != "" {
		entry.IPHash = s.hash(ip)
	}
	return entry
}

func (s *auditLogService) metadata(values map[string]any, extraSensitive []string) map[string]any {
	if len(values) == 0 {
		return nil
	}
	sensitive := make(map[string]bool, len(extraSensitive))
	for _, key := range extraSensitive {
		if folded := textutil.Fold(key); folded != "" {
			sensitive[folded] = true
		}
	}

	out := make(map[string]any, len(values))
	for key, value := range values {
		key = auditText(key, 80)
		if key == "" {
			continue
		}
		if folded := textutil.Fold(key); sensitive[folded] || isPersonalDataKey(folded) {
			out[key] = s.hash(value)
			continue
		}
		switch v := value.(type) {
		case string:
			out[key] = auditText(v, 512)
		case fmt.Stringer:
			out[key] = auditText(v.String(), 512)
		default:
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// hash returns a keyed digest of value. Maps hash stably because encoding/json sorts keys.
func (s *auditLogService) hash(value any) string {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case fmt.Stringer:
		raw = v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			b = []byte(fmt.Sprintf("%T", v))
		}
		raw = string(b)
	}
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write([]byte(textutil.Clean(raw)))
	return auditHashPrefix + hex.EncodeToString(mac.Sum(nil))
}

func isPersonalDataKey(folded string) bool {
	for _, suffix := range personalDataSuffixes {
		if strings.HasSuffix(folded, suffix) {
			return true
		}
	}
	return false
}

func normalizeActorType(actorType, actor string) string {
	switch t := strings.ToLower(strings.TrimSpace(actorType)); t {
	case "user", "system", "public":
		return t
	}
	actor = strings.ToLower(strings.TrimSpace(actor))
	switch actor {
	case "system":
		return "system"
	case "public", "anonymous":
		return "public"
	}
	for _, p := range actorPrefixes {
		if strings.HasPrefix(actor, p.prefix) {
			return p.actorType
		}
	}
	return actorTypeUnknown
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return auditSeverityInfo
	}
}

// auditText drops control characters, composes to NFC and keeps at most limit runes.
func auditText(input string, limit int) string {
	input = textutil.Clean(input)
	if input == "" {
		return ""
	}
	runes := make([]rune, 0, min(len(input), limit))
	for _, r := range input {
		if unicode.IsControl(r) {
			continue
		}
		runes = append(runes, r)
		if len(runes) == limit {
			break
		}
	}
	return strings.TrimSpace(string(runes))
}
