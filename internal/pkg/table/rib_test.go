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
	"testing"

	"github.com/stretchr/testify/assert"
)

func inputRoute(prefix, neighbor string, asPath ...uint32) *Route {
	return NewRoute(prefix, neighbor, "172.0.1.1", ORIGIN_IGP, ASPath{asPath}, nil, nil, false)
}

func TestTableInputKeyedByPrefixAndNeighbor(t *testing.T) {
	tbl := NewTable("input", true)

	r1 := inputRoute("10.0.0.0/24", "172.0.0.1", 100)
	r2 := inputRoute("10.0.0.0/24", "172.0.0.2", 200)

	assert.Nil(t, tbl.Add(r1))
	assert.Nil(t, tbl.Add(r2))
	assert.Equal(t, 2, tbl.Len())

	assert.Equal(t, r1, tbl.GetNeighbor("10.0.0.0/24", "172.0.0.1"))
	assert.Equal(t, r2, tbl.GetNeighbor("10.0.0.0/24", "172.0.0.2"))
	assert.Nil(t, tbl.GetNeighbor("10.0.0.0/24", "172.0.0.3"))
	assert.Len(t, tbl.GetAll("10.0.0.0/24"), 2)

	// a re-announcement replaces the row under the same key
	r1b := inputRoute("10.0.0.0/24", "172.0.0.1", 300)
	assert.Equal(t, r1, tbl.Add(r1b))
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, r1b, tbl.GetNeighbor("10.0.0.0/24", "172.0.0.1"))
}

func TestTableSingleKeyedByPrefix(t *testing.T) {
	tbl := NewTable("local", false)

	r1 := inputRoute("10.0.0.0/24", "172.0.0.1", 100)
	r2 := inputRoute("10.0.0.0/24", "172.0.0.2", 200)

	assert.Nil(t, tbl.Add(r1))
	assert.Equal(t, r1, tbl.Add(r2))
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, r2, tbl.Get("10.0.0.0/24"))
}

func TestTableDelete(t *testing.T) {
	tbl := NewTable("input", true)
	r1 := inputRoute("10.0.0.0/24", "172.0.0.1", 100)
	r2 := inputRoute("10.0.0.0/24", "172.0.0.2", 200)
	tbl.Add(r1)
	tbl.Add(r2)

	assert.Nil(t, tbl.DeleteNeighbor("10.0.0.0/24", "172.0.0.9"))
	assert.Equal(t, r1, tbl.DeleteNeighbor("10.0.0.0/24", "172.0.0.1"))
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, r2, tbl.DeleteNeighbor("10.0.0.0/24", "172.0.0.2"))
	assert.Equal(t, 0, tbl.Len())
	assert.Nil(t, tbl.Get("10.0.0.0/24"))

	single := NewTable("output", false)
	single.Add(r1)
	assert.Equal(t, r1, single.Delete("10.0.0.0/24"))
	assert.Nil(t, single.Delete("10.0.0.0/24"))
}

func TestTableRoutesByNeighbor(t *testing.T) {
	tbl := NewTable("input", true)
	tbl.Add(inputRoute("10.0.0.0/24", "172.0.0.1", 100))
	tbl.Add(inputRoute("10.0.1.0/24", "172.0.0.1", 100))
	tbl.Add(inputRoute("10.0.2.0/24", "172.0.0.2", 100))

	assert.Len(t, tbl.RoutesByNeighbor("172.0.0.1"), 2)
	assert.Len(t, tbl.RoutesByNeighbor("172.0.0.2"), 1)
	assert.Len(t, tbl.RoutesByNeighbor("172.0.0.9"), 0)
}

func TestTableLongestMatch(t *testing.T) {
	tbl := NewTable("local", false)
	wide := inputRoute("10.0.0.0/16", "172.0.0.1", 100)
	narrow := inputRoute("10.0.3.0/24", "172.0.0.2", 200)
	tbl.Add(wide)
	tbl.Add(narrow)

	assert.Equal(t, narrow, tbl.LongestMatch("10.0.3.7"))
	assert.Equal(t, wide, tbl.LongestMatch("10.0.4.7"))
	assert.Nil(t, tbl.LongestMatch("192.168.0.1"))
}

func TestTableWalkStops(t *testing.T) {
	tbl := NewTable("input", true)
	tbl.Add(inputRoute("10.0.0.0/24", "172.0.0.1", 100))
	tbl.Add(inputRoute("10.0.1.0/24", "172.0.0.1", 100))
	tbl.Add(inputRoute("10.0.2.0/24", "172.0.0.1", 100))

	visited := 0
	tbl.Walk(func(r *Route) bool {
		visited++
		return visited == 2
	})
	assert.Equal(t, 2, visited)
}

func TestRibCommitTiers(t *testing.T) {
	rib := NewRib()
	r := inputRoute("10.0.0.0/24", "172.0.0.1", 100)

	// staged adds and deletes flush a commit each
	rib.AddRoute(rib.Input, r)
	assert.Equal(t, 0, rib.Pending())
	assert.Equal(t, uint64(1), rib.Commits())

	rib.DeleteNeighborRoute(rib.Input, "10.0.0.0/24", "172.0.0.1")
	assert.Equal(t, uint64(2), rib.Commits())

	// a delete that removes nothing does not commit
	rib.DeleteRoute(rib.Local, "10.0.0.0/24")
	assert.Equal(t, uint64(2), rib.Commits())

	// best path upserts bypass the journal entirely
	rib.UpdateRoute(rib.Local, r)
	rib.UpdateRoute(rib.Local, r)
	assert.Equal(t, 0, rib.Pending())
	assert.Equal(t, uint64(2), rib.Commits())
	assert.Equal(t, r, rib.Local.Get("10.0.0.0/24"))
}

func TestRibClear(t *testing.T) {
	rib := NewRib()
	rib.AddRoute(rib.Input, inputRoute("10.0.0.0/24", "172.0.0.1", 100))
	rib.AddRoute(rib.Input, inputRoute("10.0.0.0/24", "172.0.0.2", 200))
	rib.UpdateRoute(rib.Local, inputRoute("10.0.0.0/24", "172.0.0.1", 100))
	rib.UpdateRoute(rib.Output, inputRoute("10.0.0.0/24", "172.0.0.1", 100))

	commits := rib.Commits()
	rib.Clear()

	assert.Equal(t, 0, rib.Input.Len())
	assert.Equal(t, 0, rib.Local.Len())
	assert.Equal(t, 0, rib.Output.Len())
	assert.Equal(t, 0, rib.Pending())
	assert.Equal(t, commits+1, rib.Commits())
}

func TestRibStageLookup(t *testing.T) {
	rib := NewRib()
	assert.Equal(t, rib.Input, rib.Stage("input"))
	assert.Equal(t, rib.Local, rib.Stage("local"))
	assert.Equal(t, rib.Output, rib.Stage("output"))
	assert.Nil(t, rib.Stage("bogus"))
}
