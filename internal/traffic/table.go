package traffic

import (
	"errors"
	"fmt"

	"fleetnav/internal/graph"
)

// Owner is the stable token of the executor holding a reservation.
type Owner string

// EdgeKey identifies one reservable stretch of track.
type EdgeKey struct {
	From graph.NodeID
	To   graph.NodeID
}

func (k EdgeKey) String() string { return fmt.Sprintf("%d->%d", k.From, k.To) }

// ErrDoubleReservation marks an attempt to give an owned edge a second owner.
// It always indicates a bug in the caller.
var ErrDoubleReservation = errors.New("traffic: edge reserved by another executor")

// ConflictError carries the edge and both parties of a double reservation.
type ConflictError struct {
	Edge    EdgeKey
	Holder  Owner
	Claimer Owner
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s held by %q, claimed by %q", ErrDoubleReservation, e.Edge, e.Holder, e.Claimer)
}

func (e *ConflictError) Unwrap() error { return ErrDoubleReservation }

// Table maps each reserved edge to its single owner. It does no locking of
// its own; Controller serializes every access.
type Table struct {
	owners map[EdgeKey]Owner
}

func NewTable() *Table {
	return &Table{owners: map[EdgeKey]Owner{}}
}

// Owner returns the current owner of k.
func (t *Table) Owner(k EdgeKey) (Owner, bool) {
	o, ok := t.owners[k]
	return o, ok
}

// Free reports whether o may take k: nobody holds it, or o already does.
func (t *Table) Free(k EdgeKey, o Owner) bool {
	cur, ok := t.owners[k]
	return !ok || cur == o
}

// Reserve assigns k to o. Reserving an edge o already holds is a no-op.
func (t *Table) Reserve(k EdgeKey, o Owner) error {
	if cur, ok := t.owners[k]; ok && cur != o {
		return &ConflictError{Edge: k, Holder: cur, Claimer: o}
	}
	t.owners[k] = o
	return nil
}

// Release drops o's claim on k. Edges o does not hold are left alone.
func (t *Table) Release(k EdgeKey, o Owner) bool {
	if cur, ok := t.owners[k]; ok && cur == o {
		delete(t.owners, k)
		return true
	}
	return false
}

// ReleaseAll drops every edge held by o and returns how many were freed.
func (t *Table) ReleaseAll(o Owner) int {
	n := 0
	for k, cur := range t.owners {
		if cur == o {
			delete(t.owners, k)
			n++
		}
	}
	return n
}

func (t *Table) Len() int { return len(t.owners) }

// Snapshot copies the current reservations.
func (t *Table) Snapshot() map[EdgeKey]Owner {
	out := make(map[EdgeKey]Owner, len(t.owners))
	for k, o := range t.owners {
		out[k] = o
	}
	return out
}
