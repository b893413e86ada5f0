// Package tenants resolves the group claim of a login attempt to the tenant
// it belongs to.
package tenants

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/sparql"
)

// Group identifies a tenant: its typed URI in the organization graph and its
// internal id, which keys the tenant's graph partitions.
type Group struct {
	URI string
	ID  string
}

// Resolver looks up groups in the canonical organization graph. It performs
// no mutations.
type Resolver struct {
	store             sparql.Store
	organizationGraph string
	organizationType  string
}

// NewResolver creates a Resolver for the configured organization graph and
// tenant type.
func NewResolver(store sparql.Store, organizationGraph, organizationType string) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("[NewResolver] store is required")
	}
	if organizationGraph == "" {
		return nil, errors.New("[NewResolver] organization graph is required")
	}
	if organizationType == "" {
		return nil, errors.New("[NewResolver] organization type is required")
	}
	return &Resolver{
		store:             store,
		organizationGraph: organizationGraph,
		organizationType:  organizationType,
	}, nil
}

// Resolve maps the group claim to its Group. It returns (nil, nil) when the
// claim is absent or matches no known group; the caller treats that as a
// login rejection. When a group identifier matches more than one record the
// lowest group URI wins, which keeps the tie-break stable across calls.
func (r *Resolver) Resolve(ctx context.Context, cs claims.Set) (*Group, error) {
	if cs.GroupID == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX dcterms: <http://purl.org/dc/terms/>

SELECT ?group ?groupId
FROM %s
WHERE {
  ?group a %s ;
         mu:uuid ?groupId ;
         dcterms:identifier %s .
}
ORDER BY ?group
LIMIT 1`,
		sparql.EscapeURI(r.organizationGraph),
		sparql.EscapeURI(r.organizationType),
		sparql.EscapeString(cs.GroupID))

	results, err := r.store.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Resolve] querying organization graph")
	}
	if results.Empty() {
		return nil, nil
	}

	row := results.First()
	return &Group{
		URI: row.Value("group"),
		ID:  row.Value("groupId"),
	}, nil
}
