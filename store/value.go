package store

import (
	"sort"

	"github.com/samber/lo"
)

// Value is one of Text, Counter, List, Set or Map.
type Value interface {
	isValue()
}

type (
	Text    string
	Counter int64
	List    []Value
	Set     map[string]struct{}
	Map     map[string]Value
)

func (Text) isValue()    {}
func (Counter) isValue() {}
func (List) isValue()    {}
func (Set) isValue()     {}
func (Map) isValue()     {}

// Expired is broadcast for a key whose TTL ran out.
var Expired Value = Text("EXPIRED")

// NewSet builds a Set from its members; duplicates collapse.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Members returns the set members in sorted order.
func (s Set) Members() []string {
	members := lo.Keys(map[string]struct{}(s))
	sort.Strings(members)
	return members
}

// cloneValue deep-copies the container variants so that callers never
// share mutable state with the store.
func cloneValue(v Value) Value {
	switch v := v.(type) {
	case List:
		if v == nil {
			return v
		}
		out := make(List, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case Set:
		if v == nil {
			return v
		}
		out := make(Set, len(v))
		for k := range v {
			out[k] = struct{}{}
		}
		return out
	case Map:
		if v == nil {
			return v
		}
		out := make(Map, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
