// Copyright (C) 2016 The sdx-parallel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package table

import (
	"sync"

	radix "github.com/armon/go-radix"
	log "github.com/sirupsen/logrus"
)

// routeBucket holds every row stored under one prefix key.
type routeBucket struct {
	entries []*Route
}

// Table is one stage of a peer RIB, a radix tree keyed by the prefix bit
// string. The input stage keeps one row per (prefix, neighbor); the local
// and output stages keep at most one row per prefix. The internal mutex
// only guards the tree structure; callers serialize logically related
// reads and writes through the peer's lock registry.
type Table struct {
	name  string
	multi bool

	mu   sync.RWMutex
	tree *radix.Tree
	size int
}

func NewTable(name string, multi bool) *Table {
	return &Table{
		name:  name,
		multi: multi,
		tree:  radix.New(),
	}
}

func (t *Table) Name() string {
	return t.name
}

// Add inserts or replaces the row under r's primary key and returns the
// replaced row, if any.
func (t *Table) Add(r *Route) *Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := CidrToRadixkey(r.Prefix)
	b, _ := t.tree.Get(key)
	var bucket *routeBucket
	if b == nil {
		bucket = &routeBucket{}
		t.tree.Insert(key, bucket)
	} else {
		bucket = b.(*routeBucket)
	}
	if !t.multi {
		var old *Route
		if len(bucket.entries) > 0 {
			old = bucket.entries[0]
		}
		bucket.entries = []*Route{r}
		if old == nil {
			t.size++
		}
		return old
	}
	for i, e := range bucket.entries {
		if e.Neighbor == r.Neighbor {
			bucket.entries[i] = r
			return e
		}
	}
	bucket.entries = append(bucket.entries, r)
	t.size++
	return nil
}

// Get returns the row stored under prefix. On the input stage, which can
// hold several rows per prefix, it returns the first one; use GetAll or
// GetNeighbor there.
func (t *Table) Get(prefix string) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if b, ok := t.tree.Get(CidrToRadixkey(prefix)); ok {
		bucket := b.(*routeBucket)
		if len(bucket.entries) > 0 {
			return bucket.entries[0]
		}
	}
	return nil
}

// GetAll returns a copy of every row stored under prefix.
func (t *Table) GetAll(prefix string) []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if b, ok := t.tree.Get(CidrToRadixkey(prefix)); ok {
		bucket := b.(*routeBucket)
		routes := make([]*Route, len(bucket.entries))
		copy(routes, bucket.entries)
		return routes
	}
	return nil
}

func (t *Table) GetNeighbor(prefix, neighbor string) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if b, ok := t.tree.Get(CidrToRadixkey(prefix)); ok {
		for _, e := range b.(*routeBucket).entries {
			if e.Neighbor == neighbor {
				return e
			}
		}
	}
	return nil
}

// Delete removes the row stored under prefix and returns it. On the input
// stage it removes the whole bucket only when a single row remains; use
// DeleteNeighbor for a keyed removal there.
func (t *Table) Delete(prefix string) *Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := CidrToRadixkey(prefix)
	b, ok := t.tree.Get(key)
	if !ok {
		return nil
	}
	bucket := b.(*routeBucket)
	if len(bucket.entries) == 0 {
		t.tree.Delete(key)
		return nil
	}
	old := bucket.entries[0]
	t.tree.Delete(key)
	t.size -= len(bucket.entries)
	return old
}

func (t *Table) DeleteNeighbor(prefix, neighbor string) *Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := CidrToRadixkey(prefix)
	b, ok := t.tree.Get(key)
	if !ok {
		return nil
	}
	bucket := b.(*routeBucket)
	for i, e := range bucket.entries {
		if e.Neighbor == neighbor {
			bucket.entries = append(bucket.entries[:i], bucket.entries[i+1:]...)
			if len(bucket.entries) == 0 {
				t.tree.Delete(key)
			}
			t.size--
			return e
		}
	}
	return nil
}

// RoutesByNeighbor walks the whole stage and returns every row advertised
// by neighbor.
func (t *Table) RoutesByNeighbor(neighbor string) []*Route {
	routes := make([]*Route, 0)
	t.Walk(func(r *Route) bool {
		if r.Neighbor == neighbor {
			routes = append(routes, r)
		}
		return false
	})
	return routes
}

// Walk visits every row in prefix key order. Returning true from fn stops
// the walk.
func (t *Table) Walk(fn func(r *Route) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.tree.Walk(func(s string, v interface{}) bool {
		for _, e := range v.(*routeBucket).entries {
			if fn(e) {
				return true
			}
		}
		return false
	})
}

// LongestMatch returns the most specific row whose prefix covers addr.
func (t *Table) LongestMatch(addr string) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, b, ok := t.tree.LongestPrefix(AddrToRadixkey(addr))
	if !ok {
		return nil
	}
	bucket := b.(*routeBucket)
	if len(bucket.entries) == 0 {
		return nil
	}
	return bucket.entries[0]
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

func (t *Table) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.size
	t.tree = radix.New()
	t.size = 0
	return n
}

// pendingOp is one staged mutation awaiting the next commit.
type pendingOp struct {
	op    string
	table string
	key   string
}

// Rib bundles the three stages of one peer's RIB with the commit journal
// for staged mutations. AddRoute and DeleteRoute stage a journal entry and
// commit it; UpdateRoute writes through without touching the journal. The
// two tiers mirror the staged versus committed durability split of the
// store contract.
type Rib struct {
	Input  *Table
	Local  *Table
	Output *Table

	mu      sync.Mutex
	pending []pendingOp
	commits uint64
}

func NewRib() *Rib {
	return &Rib{
		Input:  NewTable("input", true),
		Local:  NewTable("local", false),
		Output: NewTable("output", false),
	}
}

// Stage returns the table handle for a stage name, or nil.
func (rib *Rib) Stage(name string) *Table {
	switch name {
	case "input":
		return rib.Input
	case "local":
		return rib.Local
	case "output":
		return rib.Output
	}
	return nil
}

// AddRoute writes r into tbl and commits the staged entry.
func (rib *Rib) AddRoute(tbl *Table, r *Route) *Route {
	old := tbl.Add(r)
	rib.stage("add", tbl.name, r.Prefix)
	rib.Commit()
	return old
}

// UpdateRoute writes r into tbl without a commit boundary. Best path
// upserts use this tier.
func (rib *Rib) UpdateRoute(tbl *Table, r *Route) *Route {
	return tbl.Add(r)
}

// DeleteRoute removes the row under prefix from tbl and commits the
// staged entry.
func (rib *Rib) DeleteRoute(tbl *Table, prefix string) *Route {
	old := tbl.Delete(prefix)
	if old != nil {
		rib.stage("delete", tbl.name, prefix)
		rib.Commit()
	}
	return old
}

// DeleteNeighborRoute removes the row under (prefix, neighbor) from tbl
// and commits the staged entry.
func (rib *Rib) DeleteNeighborRoute(tbl *Table, prefix, neighbor string) *Route {
	old := tbl.DeleteNeighbor(prefix, neighbor)
	if old != nil {
		rib.stage("delete", tbl.name, prefix)
		rib.Commit()
	}
	return old
}

// Clear empties all three stages and commits the bulk delete.
func (rib *Rib) Clear() {
	for _, tbl := range []*Table{rib.Input, rib.Local, rib.Output} {
		if n := tbl.Clear(); n > 0 {
			rib.stage("clear", tbl.name, "")
			log.WithFields(log.Fields{
				"Topic": "Table",
				"Key":   tbl.name,
			}).Debugf("Cleared %d routes", n)
		}
	}
	rib.Commit()
}

func (rib *Rib) stage(op, table, key string) {
	rib.mu.Lock()
	defer rib.mu.Unlock()
	rib.pending = append(rib.pending, pendingOp{op: op, table: table, key: key})
}

// Commit flushes the journal and returns the number of operations it
// contained.
func (rib *Rib) Commit() int {
	rib.mu.Lock()
	defer rib.mu.Unlock()

	n := len(rib.pending)
	if n == 0 {
		return 0
	}
	rib.pending = rib.pending[:0]
	rib.commits++
	return n
}

// Pending returns the number of staged operations awaiting commit.
func (rib *Rib) Pending() int {
	rib.mu.Lock()
	defer rib.mu.Unlock()
	return len(rib.pending)
}

// Commits returns how many commit boundaries have been flushed.
func (rib *Rib) Commits() uint64 {
	rib.mu.Lock()
	defer rib.mu.Unlock()
	return rib.commits
}
