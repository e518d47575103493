package clusterlink

import (
	"slices"
	"strings"
)

// PeerID names a remote node. Identifiers are opaque apart from equality;
// strategies conventionally build them as "basename@host".
type PeerID string

func (p PeerID) String() string { return string(p) }

// Basename returns the part before '@', or the whole identifier when it has none.
func (p PeerID) Basename() string {
	if i := strings.IndexByte(string(p), '@'); i >= 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Host returns the part after '@', or the whole identifier when it has none.
func (p PeerID) Host() string {
	if i := strings.IndexByte(string(p), '@'); i >= 0 {
		return string(p)[i+1:]
	}
	return string(p)
}

// PeerSet is an unordered set of peer identifiers. The zero value is an
// empty set ready for reads; use NewPeerSet before Add.
type PeerSet map[PeerID]struct{}

// NewPeerSet builds a set from ids. Duplicates collapse.
func NewPeerSet(ids ...PeerID) PeerSet {
	s := make(PeerSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s PeerSet) Add(id PeerID)    { s[id] = struct{}{} }
func (s PeerSet) Remove(id PeerID) { delete(s, id) }
func (s PeerSet) Len() int         { return len(s) }

func (s PeerSet) Has(id PeerID) bool {
	_, ok := s[id]
	return ok
}

// Difference returns the members of s that are not in other.
func (s PeerSet) Difference(other PeerSet) PeerSet {
	out := make(PeerSet, len(s))
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Intersect returns the members present in both s and other.
func (s PeerSet) Intersect(other PeerSet) PeerSet {
	out := make(PeerSet)
	for id := range s {
		if other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns the members present in either set.
func (s PeerSet) Union(other PeerSet) PeerSet {
	out := make(PeerSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Without returns a copy of s with id removed.
func (s PeerSet) Without(id PeerID) PeerSet {
	out := make(PeerSet, len(s))
	for member := range s {
		if member != id {
			out[member] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s PeerSet) Sorted() []PeerID {
	out := make([]PeerID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
