// Package audit provides fire-and-forget activity recording. Writes happen
// on a detached goroutine so a slow or failing audit store can never slow
// down or fail the request that produced the record.
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/trackstackhq/trackstack/pkg/contextkeys"
	"github.com/trackstackhq/trackstack/pkg/httputil"
	"github.com/trackstackhq/trackstack/pkg/observability"
)

const writeTimeout = 5 * time.Second

// Recorder dispatches activity records to a Store without blocking callers.
type Recorder struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRecorder creates a Recorder. metrics may be nil.
func NewRecorder(store Store, logger *observability.Logger, metrics *observability.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Record persists rec asynchronously. It never returns an error; a failed
// write is counted and logged on the operational channel only. The write
// uses a fresh context so request cancellation does not abort it.
func (r *Recorder) Record(rec *Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}
	if rec.ActorType == "" {
		rec.ActorType = ActorAnonymous
	}
	if r.metrics != nil {
		r.metrics.AuditRecordsTotal.Inc()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.store.Insert(ctx, rec); err != nil {
			if r.metrics != nil {
				r.metrics.AuditDropsTotal.Inc()
			}
			r.logger.WithError(err).
				WithField("action", string(rec.Action)).
				Warn("audit record dropped")
		}
	}()
}

// RecordRequest builds a record from an HTTP request and dispatches it.
// Actor fields are filled from the request context when a resolved identity
// is present.
func (r *Recorder) RecordRequest(req *http.Request, action Action, metadata map[string]interface{}) {
	rec := &Record{
		Action:    action,
		IPAddress: httputil.ClientIP(req),
		UserAgent: req.UserAgent(),
		RequestID: contextkeys.RequestIDFrom(req.Context()),
		Method:    req.Method,
		Path:      req.URL.Path,
		Metadata:  metadata,
	}
	if user := contextkeys.UserFrom(req.Context()); user != nil {
		rec.ActorType = ActorUser
		rec.ActorID = user.ExternalID
	} else if admin := contextkeys.AdminFrom(req.Context()); admin != nil {
		rec.ActorType = ActorAdmin
		rec.ActorID = admin.ExternalID
	}
	r.Record(rec)
}

// List exposes stored records for the admin activity endpoint.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]*Record, error) {
	return r.store.List(ctx, filter)
}
