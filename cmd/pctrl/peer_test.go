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

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
)

func Test_FormatAttrs(t *testing.T) {
	assert := assert.New(t)

	r := table.NewRoute("10.0.0.0/24", "172.0.0.1", "172.0.0.1", table.ORIGIN_IGP, table.ASPath{{100, 200}}, nil, nil, false)
	assert.Equal("[{Origin: igp}]", formatAttrs(r))

	med := uint32(50)
	r = table.NewRoute("10.0.0.0/24", "172.0.0.1", "172.0.0.1", table.ORIGIN_EGP, table.ASPath{{100}},
		[]table.Community{{100, 200}}, &med, true)
	assert.Equal("[{Origin: egp} {Med: 50} {Community: [100:200]} AtomicAggregate]", formatAttrs(r))
}

func Test_DecodePeerSummary(t *testing.T) {
	assert := assert.New(t)

	body := `[{"id":"as100","as":100,"inbound-peers":["172.0.0.1","172.0.0.2"],"tables":{"input":4,"local":2,"output":2}}]`
	peers := []peerSummary{}
	assert.NoError(json.Unmarshal([]byte(body), &peers))
	assert.Len(peers, 1)
	assert.Equal("as100", peers[0].ID)
	assert.Equal(uint32(100), peers[0].AS)
	assert.Equal([]string{"172.0.0.1", "172.0.0.2"}, peers[0].InboundPeers)
	assert.Equal(2, peers[0].Tables["local"])
}

func Test_DecodeRibRows(t *testing.T) {
	assert := assert.New(t)

	body := `[{"prefix":"140.0.0.0/16","neighbor":"172.0.0.1","next-hop":"172.0.0.1","origin":"igp","as-path":[[100,200]],"communities":["100:200"],"med":50}]`
	routes := []*table.Route{}
	assert.NoError(json.Unmarshal([]byte(body), &routes))
	assert.Len(routes, 1)
	assert.Equal("140.0.0.0/16", routes[0].Prefix)
	assert.Equal(table.ORIGIN_IGP, routes[0].Origin)
	assert.Equal(table.ASPath{{100, 200}}, routes[0].ASPath)
	assert.Equal([]table.Community{{100, 200}}, routes[0].Communities)
	if assert.NotNil(routes[0].Med) {
		assert.Equal(uint32(50), *routes[0].Med)
	}
}

func Test_DecodeForwarding(t *testing.T) {
	assert := assert.New(t)

	body := `{"100.0.0.0/24":{"id":"fec-1","prefix":"100.0.0.0/24","vnh":"172.16.0.1"}}`
	m := map[string]*forwardingEntry{}
	assert.NoError(json.Unmarshal([]byte(body), &m))
	if assert.Contains(m, "100.0.0.0/24") {
		assert.Equal("fec-1", m["100.0.0.0/24"].ID)
		assert.Equal("172.16.0.1", m["100.0.0.0/24"].VNH)
	}
}
