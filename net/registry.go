package net

import (
	"github.com/emirpasic/gods/maps/treemap"
)

// The registry maps peer identities to connections.  Iteration is in
// identity order.
//
// The registry is not synchronized.  It must only be accessed from the
// owning server's queue.
type registry struct {
	conns *treemap.Map
}

func newRegistry() *registry {
	return &registry{treemap.NewWithStringComparator()}
}

// Stores the connection, replacing (and returning) any connection
// previously registered under the same identity.
func (r *registry) Put(identity string, conn *Connection) *Connection {
	prev := r.Get(identity)
	r.conns.Put(identity, conn)
	return prev
}

func (r *registry) Get(identity string) *Connection {
	val, ok := r.conns.Get(identity)
	if !ok {
		return nil
	}
	return val.(*Connection)
}

// Removes the identity only if it still maps to conn.  A connection that
// has been replaced under its identity must not evict its replacement.
func (r *registry) RemoveIf(identity string, conn *Connection) bool {
	if r.Get(identity) != conn {
		return false
	}

	r.conns.Remove(identity)
	return true
}

func (r *registry) Size() int {
	return r.conns.Size()
}

func (r *registry) Identities() []string {
	keys := r.conns.Keys()
	ret := make([]string, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k.(string))
	}
	return ret
}

func (r *registry) All() []*Connection {
	vals := r.conns.Values()
	ret := make([]*Connection, 0, len(vals))
	for _, v := range vals {
		ret = append(ret, v.(*Connection))
	}
	return ret
}
