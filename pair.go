package dash

import (
	"bytes"
	"fmt"
)

// Value is the opaque payload stored with every key.
type Value = []byte

// Pair is an immutable key/value record. Once inserted it is owned by the
// bucket slot that holds it.
type Pair[K comparable] struct {
	Key   K
	Value Value
}

// NewPair builds a pair that owns a private copy of value.
func NewPair[K comparable](key K, value Value) *Pair[K] {
	return &Pair[K]{Key: key, Value: bytes.Clone(value)}
}

func (p *Pair[K]) String() string {
	return fmt.Sprintf("{%v: %q}", p.Key, p.Value)
}
