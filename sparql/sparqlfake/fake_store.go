// Package sparqlfake provides a scripted in-memory Store for tests.
package sparqlfake

import (
	"context"
	"sync"

	"github.com/bdevloed/graph-login-service/sparql"
)

// Store records every query and update it receives. Responses are driven by
// QueryFunc/UpdateFunc when set; the defaults succeed with an empty result.
type Store struct {
	mu      sync.Mutex
	queries []string
	updates []string

	QueryFunc  func(query string) (*sparql.Results, error)
	UpdateFunc func(update string) error
}

var _ sparql.Store = (*Store)(nil)

// New creates an empty fake store.
func New() *Store {
	return &Store{}
}

func (s *Store) Query(_ context.Context, query string) (*sparql.Results, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.QueryFunc != nil {
		return s.QueryFunc(query)
	}
	return &sparql.Results{}, nil
}

func (s *Store) Update(_ context.Context, update string) error {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()

	if s.UpdateFunc != nil {
		return s.UpdateFunc(update)
	}
	return nil
}

// Queries returns a copy of the queries seen so far.
func (s *Store) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Updates returns a copy of the updates seen so far.
func (s *Store) Updates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.updates...)
}

// BindingsFor builds a single-row result from variable/value pairs, for use
// in QueryFunc implementations.
func BindingsFor(pairs map[string]string) *sparql.Results {
	return MultiBindingsFor(pairs)
}

// MultiBindingsFor builds a result with one row per argument map.
func MultiBindingsFor(rows ...map[string]string) *sparql.Results {
	results := &sparql.Results{}
	for _, row := range rows {
		binding := sparql.Binding{}
		for name, value := range row {
			binding[name] = sparql.Term{Type: "uri", Value: value}
		}
		results.Results.Bindings = append(results.Results.Bindings, binding)
	}
	return results
}
