package core

import (
	"sort"
	"sync/atomic"
)

// RoomBinding describes how a bound room may be used.
type RoomBinding struct {
	Name    string
	Private bool
	WebPost bool
}

type bindingTable struct {
	rooms map[string]RoomBinding
}

// Bindings is the read-only room binding table.
// Replace swaps the whole table atomically so readers never see a partial refresh.
type Bindings struct {
	table atomic.Pointer[bindingTable]
}

// NewBindings builds a table from room bindings.
func NewBindings(rooms []RoomBinding) *Bindings {
	b := &Bindings{}
	b.Replace(rooms)
	return b
}

// Replace installs a new set of room bindings.
func (b *Bindings) Replace(rooms []RoomBinding) {
	t := &bindingTable{rooms: make(map[string]RoomBinding, len(rooms))}
	for _, r := range rooms {
		t.rooms[r.Name] = r
	}
	b.table.Store(t)
}

// Lookup returns the binding for a public room.
// Unknown and private rooms both report ErrRoomNotFound.
func (b *Bindings) Lookup(room string) (RoomBinding, error) {
	t := b.table.Load()
	if t == nil {
		return RoomBinding{}, ErrRoomNotFound
	}
	r, ok := t.rooms[room]
	if !ok || r.Private {
		return RoomBinding{}, ErrRoomNotFound
	}
	return r, nil
}

// Public lists the names of all non-private rooms in sorted order.
func (b *Bindings) Public() []string {
	t := b.table.Load()
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.rooms))
	for name, r := range t.rooms {
		if !r.Private {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
