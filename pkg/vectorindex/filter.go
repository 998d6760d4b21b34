package vectorindex

import "spacey/pkg/domain"

// Metadata keys stored on every chunk.
const (
	FieldUserID     = "user_id"
	FieldSourceID   = "source_id"
	FieldSourceType = "source_type"
)

// Match constrains one metadata field. The zero value matches everything.
type Match struct {
	set    bool
	values []string
}

// Eq matches an exact value.
func Eq(value string) Match {
	return Match{set: true, values: []string{value}}
}

// In matches any of the given values. An empty list matches nothing.
func In(values ...string) Match {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return Match{set: true, values: out}
}

// TypesIn matches any of the given source types.
func TypesIn(types ...domain.SourceType) Match {
	values := make([]string, 0, len(types))
	for _, t := range types {
		values = append(values, string(t))
	}
	return In(values...)
}

// IsSet reports whether the match constrains its field.
func (m Match) IsSet() bool { return m.set }

// Values returns the accepted values.
func (m Match) Values() []string { return m.values }

func (m Match) accepts(v string) bool {
	if !m.set {
		return true
	}
	for _, candidate := range m.values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Filter restricts a query to chunks whose metadata satisfies every set field.
type Filter struct {
	UserID     Match
	SourceID   Match
	SourceType Match
}

// Condition is one constrained field of a Filter.
type Condition struct {
	Field  string
	Values []string
}

// Conditions lists the set fields in a stable order.
func (f Filter) Conditions() []Condition {
	var out []Condition
	if f.UserID.IsSet() {
		out = append(out, Condition{Field: FieldUserID, Values: f.UserID.Values()})
	}
	if f.SourceID.IsSet() {
		out = append(out, Condition{Field: FieldSourceID, Values: f.SourceID.Values()})
	}
	if f.SourceType.IsSet() {
		out = append(out, Condition{Field: FieldSourceType, Values: f.SourceType.Values()})
	}
	return out
}

// MatchesNothing reports whether some field has an empty any-of set, which
// no chunk can satisfy.
func (f Filter) MatchesNothing() bool {
	for _, c := range f.Conditions() {
		if len(c.Values) == 0 {
			return true
		}
	}
	return false
}

// Matches evaluates the filter against chunk metadata.
func (f Filter) Matches(meta domain.ChunkMetadata) bool {
	return f.UserID.accepts(meta.UserID) &&
		f.SourceID.accepts(meta.SourceID) &&
		f.SourceType.accepts(string(meta.SourceType))
}
