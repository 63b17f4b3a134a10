package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/oklog/ulid/v2"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const (
	auditLogCollection      = "auditLogs"
	defaultAuditLogPageSize = 50
)

// AuditLogRepository persists immutable audit trail entries within Firestore.
type AuditLogRepository struct {
	base     *pfirestore.BaseRepository[auditLogEntryDocument]
	provider *pfirestore.Provider
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[auditLogEntryDocument](provider, auditLogCollection, nil, nil)
	return &AuditLogRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Append writes one audit entry. Entries are never updated or deleted. ULID
// document IDs keep lexical order aligned with insertion time.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}

	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		entryID = ulid.Make().String()
	}

	ref, err := r.base.DocumentRef(ctx, entryID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeAuditEntry(entry)); err != nil {
		return pfirestore.WrapError("audit_logs.append", err)
	}
	return nil
}

// List returns audit entries newest first, filtered and cursor paginated.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	query := client.Collection(auditLogCollection).Query
	if targetRef := strings.TrimSpace(filter.TargetRef); targetRef != "" {
		query = query.Where("targetRef", "==", targetRef)
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query = query.Where("actor", "==", actor)
	}
	if actorType := strings.TrimSpace(filter.ActorType); actorType != "" {
		query = query.Where("actorType", "==", actorType)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action", "==", action)
	}
	if !filter.DateRange.From.IsZero() {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if !filter.DateRange.To.IsZero() {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = defaultAuditLogPageSize
	}
	fetchLimit := limit + 1

	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(fetchLimit)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursorTime, cursorID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("audit_logs.list: invalid page token: %w", err)
		}
		query = query.StartAfter(cursorTime, cursorID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.AuditLogEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, pfirestore.WrapError("audit_logs.list", err)
		}
		var doc auditLogEntryDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("audit_logs.list: decode %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, decodeAuditEntry(snap.Ref.ID, doc))
	}

	nextToken := ""
	if len(entries) == fetchLimit {
		last := entries[len(entries)-1]
		nextToken = encodeTimeCursor(last.CreatedAt, last.ID)
		entries = entries[:len(entries)-1]
	}
	return domain.CursorPage[domain.AuditLogEntry]{
		Items:         entries,
		NextPageToken: nextToken,
	}, nil
}

func encodeAuditEntry(entry domain.AuditLogEntry) auditLogEntryDocument {
	return auditLogEntryDocument{
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func decodeAuditEntry(id string, doc auditLogEntryDocument) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        id,
		Actor:     doc.Actor,
		ActorType: doc.ActorType,
		Action:    doc.Action,
		TargetRef: doc.TargetRef,
		Severity:  doc.Severity,
		RequestID: doc.RequestID,
		Metadata:  doc.Metadata,
		Diff:      doc.Diff,
		CreatedAt: doc.CreatedAt,
	}
}

type auditLogEntryDocument struct {
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef,omitempty"`
	Severity  string         `firestore:"severity"`
	RequestID string         `firestore:"requestId,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Diff      map[string]any `firestore:"diff,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
