// Package identity idempotently reconciles the Person and Account a claim
// set asserts, scoped to the tenant's graph partitions.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/internal/config"
	"github.com/bdevloed/graph-login-service/sparql"
)

const serviceHomepage = "https://github.com/bdevloed/graph-login-service"

// PersonRef identifies a Person record.
type PersonRef struct {
	URI string
	ID  string
}

// AccountRef identifies an Account record.
type AccountRef struct {
	URI string
	ID  string
}

// Settings carries the graph naming templates and URI minting base the
// reconciler needs; all values come from the process configuration.
type Settings struct {
	UserGraphTemplate    config.GraphTemplate
	AccountGraphTemplate config.GraphTemplate
	ResourceBaseURI      string
}

// Reconciler ensures a Person exists for the subject claim and an Account
// for the account claim. Records are created once and never mutated here.
//
// The store enforces no unique constraints, so uniqueness rests on a
// check-then-insert. Same-key reconciliations within this process are
// serialized with a keyed mutex; concurrent replicas can still mint
// duplicates, which is an accepted trade-off of the store.
type Reconciler struct {
	store    sparql.Store
	settings Settings

	newID   func() string
	nowTime func() time.Time
	keyed   keyedMutex
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNewID overrides id minting (primarily for testing).
func WithNewID(newID func() string) ReconcilerOption {
	return func(r *Reconciler) {
		r.newID = newID
	}
}

// WithNowTime overrides the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.nowTime = nowFunc
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(store sparql.Store, settings Settings, options ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("[NewReconciler] store is required")
	}
	if settings.UserGraphTemplate == "" {
		return nil, errors.New("[NewReconciler] user graph template is required")
	}
	if settings.AccountGraphTemplate == "" {
		return nil, errors.New("[NewReconciler] account graph template is required")
	}
	if settings.ResourceBaseURI == "" {
		return nil, errors.New("[NewReconciler] resource base URI is required")
	}

	r := &Reconciler{
		store:    store,
		settings: settings,
		newID:    func() string { return uuid.New().String() },
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// EnsureAccount resolves or creates the Person for the subject claim and the
// Account for the account claim inside the tenant's graphs, and returns the
// Account. The only error path is store failure.
func (r *Reconciler) EnsureAccount(ctx context.Context, cs claims.Set, groupID string) (AccountRef, error) {
	userGraph := r.settings.UserGraphTemplate.ForGroup(groupID)
	accountGraph := r.settings.AccountGraphTemplate.ForGroup(groupID)

	unlockPerson := r.keyed.lock(groupID + "\x00person\x00" + cs.SubjectID)
	person, err := r.ensurePerson(ctx, cs, userGraph)
	unlockPerson()
	if err != nil {
		return AccountRef{}, err
	}

	unlockAccount := r.keyed.lock(groupID + "\x00account\x00" + cs.AccountID)
	defer unlockAccount()
	return r.ensureAccount(ctx, person, cs, accountGraph)
}

func (r *Reconciler) ensurePerson(ctx context.Context, cs claims.Set, graph string) (PersonRef, error) {
	query := fmt.Sprintf(`PREFIX foaf: <http://xmlns.com/foaf/0.1/>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX adms: <http://www.w3.org/ns/adms#>
PREFIX skos: <http://www.w3.org/2004/02/skos/core#>

SELECT ?person ?personId
FROM %s
WHERE {
  ?person a foaf:Person ;
          mu:uuid ?personId ;
          adms:identifier ?identifier .
  ?identifier skos:notation %s .
}`,
		sparql.EscapeURI(graph),
		sparql.EscapeString(cs.SubjectID))

	results, err := r.store.Query(ctx, query)
	if err != nil {
		return PersonRef{}, errors.Wrap(err, "[Reconciler.ensurePerson] querying user graph")
	}
	if !results.Empty() {
		row := results.First()
		return PersonRef{URI: row.Value("person"), ID: row.Value("personId")}, nil
	}
	return r.insertPerson(ctx, cs, graph)
}

func (r *Reconciler) insertPerson(ctx context.Context, cs claims.Set, graph string) (PersonRef, error) {
	personID := r.newID()
	personURI := r.settings.ResourceBaseURI + "id/person/" + personID
	identifierID := r.newID()
	identifierURI := r.settings.ResourceBaseURI + "id/identifier/" + identifierID

	update := fmt.Sprintf(`PREFIX foaf: <http://xmlns.com/foaf/0.1/>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX adms: <http://www.w3.org/ns/adms#>
PREFIX skos: <http://www.w3.org/2004/02/skos/core#>

INSERT DATA {
  GRAPH %s {
    %s a foaf:Person ;
       mu:uuid %s ;
       adms:identifier %s .
    %s a adms:Identifier ;
       mu:uuid %s ;
       skos:notation %s .
  }
}`,
		sparql.EscapeURI(graph),
		sparql.EscapeURI(personURI),
		sparql.EscapeString(personID),
		sparql.EscapeURI(identifierURI),
		sparql.EscapeURI(identifierURI),
		sparql.EscapeString(identifierID),
		sparql.EscapeString(cs.SubjectID))

	if err := r.store.Update(ctx, update); err != nil {
		return PersonRef{}, errors.Wrap(err, "[Reconciler.insertPerson] inserting person")
	}
	return PersonRef{URI: personURI, ID: personID}, nil
}

func (r *Reconciler) ensureAccount(ctx context.Context, person PersonRef, cs claims.Set, graph string) (AccountRef, error) {
	query := fmt.Sprintf(`PREFIX foaf: <http://xmlns.com/foaf/0.1/>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX dcterms: <http://purl.org/dc/terms/>

SELECT ?account ?accountId
FROM %s
WHERE {
  %s foaf:account ?account .
  ?account a foaf:OnlineAccount ;
           mu:uuid ?accountId ;
           dcterms:identifier %s .
}`,
		sparql.EscapeURI(graph),
		sparql.EscapeURI(person.URI),
		sparql.EscapeString(cs.AccountID))

	results, err := r.store.Query(ctx, query)
	if err != nil {
		return AccountRef{}, errors.Wrap(err, "[Reconciler.ensureAccount] querying account graph")
	}
	if !results.Empty() {
		row := results.First()
		return AccountRef{URI: row.Value("account"), ID: row.Value("accountId")}, nil
	}
	return r.insertAccount(ctx, person, cs, graph)
}

func (r *Reconciler) insertAccount(ctx context.Context, person PersonRef, cs claims.Set, graph string) (AccountRef, error) {
	accountID := r.newID()
	accountURI := r.settings.ResourceBaseURI + "id/account/" + accountID

	update := fmt.Sprintf(`PREFIX foaf: <http://xmlns.com/foaf/0.1/>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX dcterms: <http://purl.org/dc/terms/>

INSERT DATA {
  GRAPH %s {
    %s foaf:account %s .
    %s a foaf:OnlineAccount ;
       mu:uuid %s ;
       foaf:accountServiceHomepage %s ;
       dcterms:identifier %s ;
       dcterms:created %s .
  }
}`,
		sparql.EscapeURI(graph),
		sparql.EscapeURI(person.URI),
		sparql.EscapeURI(accountURI),
		sparql.EscapeURI(accountURI),
		sparql.EscapeString(accountID),
		sparql.EscapeURI(serviceHomepage),
		sparql.EscapeString(cs.AccountID),
		sparql.EscapeDateTime(r.nowTime()))

	if err := r.store.Update(ctx, update); err != nil {
		return AccountRef{}, errors.Wrap(err, "[Reconciler.insertAccount] inserting account")
	}
	return AccountRef{URI: accountURI, ID: accountID}, nil
}

// keyedMutex serializes critical sections per key within one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
