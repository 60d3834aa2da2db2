package storage

import (
	"strings"
)

// query accumulates SQL text and its bound arguments, numbering placeholders
// in bind order so the same builder works for "?" and "$n" dialects.
type query struct {
	driver Driver
	sb     strings.Builder
	args   []any
}

func newQuery(d Driver, sql string) *query {
	q := &query{driver: d}
	q.sb.WriteString(sql)
	return q
}

func (q *query) write(s string) *query {
	q.sb.WriteString(s)
	return q
}

// bind records v as the next argument and returns its placeholder.
func (q *query) bind(v any) string {
	q.args = append(q.args, v)
	return q.driver.Placeholder(len(q.args))
}

func (q *query) String() string {
	return q.sb.String()
}

// definitionPredicate appends the WHERE fragment selecting rows owned by def.
//
// Equality against NULL never matches in SQL, so an unversioned definition
// must be matched with IS NULL rather than by binding a NULL parameter.
func definitionPredicate(q *query, def DefinitionKey) {
	q.write("definition_id = ").write(q.bind(def.ID))
	if def.Version == nil {
		q.write(" AND definition_version IS NULL")
		return
	}
	q.write(" AND definition_version = ").write(q.bind(*def.Version))
}

// Predicate renders the definition predicate on its own, starting at the
// first placeholder.
func Predicate(d Driver, def DefinitionKey) (string, []any) {
	q := newQuery(d, "")
	definitionPredicate(q, def)
	return q.String(), q.args
}
