package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netwatch/internal/bucketing"
	"netwatch/internal/client"
	"netwatch/internal/config"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

// Recorder captures system activity events. Recording is best effort: the
// operation that produced the event has already committed, so failures are
// logged and swallowed.
type Recorder interface {
	Record(ctx context.Context, event model.AuditEvent)
	SearchLogs(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

type esRecorder struct {
	es      *client.ESClient
	buckets *bucketing.Manager
	index   string
}

func NewRecorder(es *client.ESClient, buckets *bucketing.Manager, cfg *config.Config) Recorder {
	return &esRecorder{
		es:      es,
		buckets: buckets,
		index:   cfg.Elasticsearch.AuditIndex,
	}
}

func (r *esRecorder) Record(ctx context.Context, event model.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Daily indices keep retention a matter of dropping old indices.
	index := fmt.Sprintf("%s-%s", r.index, r.buckets.GetDateBucket(event.Timestamp))

	res, err := r.es.IndexDocument(ctx, index, event.ID, event)
	if err != nil {
		util.Warn("Failed to record audit event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Audit index rejected event",
			zap.String("type", event.Type),
			zap.String("status", res.Status()))
	}
}

type auditHits struct {
	Hits struct {
		Hits []struct {
			Source model.AuditEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchLogs returns the newest recorded events across all daily indices.
func (r *esRecorder) SearchLogs(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	query := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}

	res, err := r.es.Search(ctx, r.index+"-*", query)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// A cluster with no audit indices yet is not an error worth surfacing.
		if res.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("audit log search failed: %s", res.Status())
	}

	var parsed auditHits
	if err := r.es.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse audit logs: %w", err)
	}

	events := make([]model.AuditEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}

// NopRecorder discards all events. Used when Elasticsearch is not configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, model.AuditEvent) {}

func (NopRecorder) SearchLogs(context.Context, int) ([]model.AuditEvent, error) {
	return nil, nil
}
