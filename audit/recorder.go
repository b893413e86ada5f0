// Package audit writes rejection records to the configured logs graph so
// operators can trace identities that were denied a login.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bdevloed/graph-login-service/sparql"
)

// Recorder persists audit entries in a named graph.
type Recorder struct {
	store           sparql.Store
	graph           string
	resourceBaseURI string

	newID   func() string
	nowTime func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithNewID overrides id minting (primarily for testing).
func WithNewID(newID func() string) RecorderOption {
	return func(r *Recorder) {
		r.newID = newID
	}
}

// WithNowTime overrides the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.nowTime = nowFunc
	}
}

// NewRecorder creates a Recorder writing into the given graph.
func NewRecorder(store sparql.Store, graph, resourceBaseURI string, options ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("[NewRecorder] store is required")
	}
	if graph == "" {
		return nil, errors.New("[NewRecorder] logs graph is required")
	}
	if resourceBaseURI == "" {
		return nil, errors.New("[NewRecorder] resource base URI is required")
	}

	r := &Recorder{
		store:           store,
		graph:           graph,
		resourceBaseURI: resourceBaseURI,
		newID:           func() string { return uuid.New().String() },
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// RecordRejection stores one rejection entry. class categorizes the
// rejection, sessionToken is the session the caller presented and reference
// holds the offending claim value.
func (r *Recorder) RecordRejection(ctx context.Context, class, message, sessionToken, reference string) error {
	entryID := r.newID()
	entryURI := r.resourceBaseURI + "id/log-entries/" + entryID

	update := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>
PREFIX dcterms: <http://purl.org/dc/terms/>

INSERT DATA {
  GRAPH %s {
    %s a ext:LogEntry ;
       mu:uuid %s ;
       ext:logClass %s ;
       ext:logMessage %s ;
       ext:logSession %s ;
       ext:logReference %s ;
       dcterms:created %s .
  }
}`,
		sparql.EscapeURI(r.graph),
		sparql.EscapeURI(entryURI),
		sparql.EscapeString(entryID),
		sparql.EscapeURI(class),
		sparql.EscapeString(message),
		sparql.EscapeURI(sessionToken),
		sparql.EscapeString(reference),
		sparql.EscapeDateTime(r.nowTime()))

	if err := r.store.Update(ctx, update); err != nil {
		return errors.Wrap(err, "[Recorder.RecordRejection] inserting log entry")
	}
	return nil
}
