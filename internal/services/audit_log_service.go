package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

const (
	defaultAuditSeverity = "info"
	defaultActorType     = "system"
	hashedValuePrefix    = "sha256:"
)

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
	HashSalt   string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit entry after masking sensitive fields. Repository
// failures are logged but never bubble up, so audit writes cannot break the
// mutation they describe.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit_append_failed", map[string]any{
			"action":     entry.Action,
			"target_ref": entry.TargetRef,
			"error":      err.Error(),
		})
	}
}

func (s *auditLogService) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	filter.TargetRef = strings.TrimSpace(filter.TargetRef)
	filter.Actor = strings.TrimSpace(filter.Actor)
	filter.ActorType = strings.TrimSpace(filter.ActorType)
	filter.Action = strings.TrimSpace(filter.Action)
	return s.repo.List(ctx, filter)
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	} else {
		occurred = occurred.UTC()
	}

	sensitive := normalizeSensitiveKeys(record.SensitiveKeys)

	entry := domain.AuditLogEntry{
		Actor:     sanitizeText(record.Actor, 160),
		ActorType: normalizeActorType(record.ActorType),
		Action:    sanitizeText(record.Action, 120),
		TargetRef: sanitizeText(record.TargetRef, 200),
		Severity:  normalizeSeverity(record.Severity),
		RequestID: sanitizeText(record.RequestID, 128),
		CreatedAt: occurred,
	}
	if meta := s.prepareMetadata(record.Metadata, sensitive); len(meta) > 0 {
		entry.Metadata = meta
	}
	if diff := s.prepareDiff(record.Diff, sensitive); len(diff) > 0 {
		entry.Diff = diff
	}
	return entry
}

func (s *auditLogService) prepareMetadata(metadata map[string]any, sensitive map[string]struct{}) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for key, value := range metadata {
		trimmed := sanitizeText(key, 80)
		if trimmed == "" {
			continue
		}
		if _, masked := sensitive[strings.ToLower(trimmed)]; masked {
			result[trimmed] = hashedValuePrefix + s.hashValue(value)
			continue
		}
		result[trimmed] = sanitizeAuditValue(value)
	}
	return result
}

func (s *auditLogService) prepareDiff(diff map[string]AuditLogDiff, sensitive map[string]struct{}) map[string]any {
	if len(diff) == 0 {
		return nil
	}
	result := make(map[string]any, len(diff))
	for key, change := range diff {
		trimmed := sanitizeText(key, 80)
		if trimmed == "" {
			continue
		}
		if _, masked := sensitive[strings.ToLower(trimmed)]; masked {
			result[trimmed] = map[string]any{
				"before": hashedValuePrefix + s.hashValue(change.Before),
				"after":  hashedValuePrefix + s.hashValue(change.After),
			}
			continue
		}
		result[trimmed] = map[string]any{
			"before": sanitizeAuditValue(change.Before),
			"after":  sanitizeAuditValue(change.After),
		}
	}
	return result
}

func (s *auditLogService) hashValue(value any) string {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case fmt.Stringer:
		raw = v.String()
	case []byte:
		raw = string(v)
	default:
		if b, err := json.Marshal(v); err == nil {
			raw = string(b)
		} else {
			raw = fmt.Sprintf("%v", v)
		}
	}
	sum := sha256.Sum256([]byte(s.hashSalt + strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func normalizeActorType(actorType string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(actorType)); normalized {
	case "customer", "staff", "system", "service":
		return normalized
	default:
		return defaultActorType
	}
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return defaultAuditSeverity
	}
}

func normalizeSensitiveKeys(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	result := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		trimmed := strings.ToLower(strings.TrimSpace(key))
		if trimmed == "" {
			continue
		}
		result[trimmed] = struct{}{}
	}
	return result
}

func sanitizeAuditValue(value any) any {
	switch v := value.(type) {
	case string:
		return sanitizeText(v, 512)
	case fmt.Stringer:
		return sanitizeText(v.String(), 512)
	default:
		return v
	}
}

// sanitizeText trims, strips control characters and enforces a length cap.
func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
