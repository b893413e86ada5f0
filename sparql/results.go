package sparql

// Results is a SPARQL JSON query result (application/sparql-results+json).
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// Binding maps a variable name to its bound term for one result row.
type Binding map[string]Term

// Term is a single RDF term in a result binding.
type Term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Empty reports whether the query matched no rows.
func (r *Results) Empty() bool {
	return r == nil || len(r.Results.Bindings) == 0
}

// First returns the first binding row, or nil when the result is empty.
func (r *Results) First() Binding {
	if r.Empty() {
		return nil
	}
	return r.Results.Bindings[0]
}

// Value returns the bound value for a variable, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}
