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

package server

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
	"github.com/sdn-ixp/sdx-parallel/pkg/api"
)

// PeerSummary is the API representation of one hosted participant.
type PeerSummary struct {
	ID           string         `json:"id"`
	AS           uint32         `json:"as"`
	InboundPeers []string       `json:"inbound-peers"`
	Tables       map[string]int `json:"tables"`
}

// ServeApiRequests answers REST queries until RestReqCh closes. Reads go
// straight to the tables, which are individually consistent; a query
// racing a decision can observe a change half applied across stages,
// which is acceptable for an inspection surface.
func (s *PctrlServer) ServeApiRequests() {
	for req := range s.RestReqCh {
		s.handleApiRequest(req)
	}
}

func (s *PctrlServer) handleApiRequest(req *api.RestRequest) {
	var data interface{}
	var err error
	switch req.RequestType {
	case api.REQ_PEERS:
		data = s.peerSummaries()
	case api.REQ_PEER:
		data, err = s.peerSummary(req.AS)
	case api.REQ_RIB:
		data, err = s.ribRows(req.AS, req.Table)
	case api.REQ_LOOKUP:
		data, err = s.lookupRoute(req.AS, req.Key)
	case api.REQ_FORWARDING:
		data, err = s.forwardingRecords(req.AS)
	default:
		err = fmt.Errorf("unsupported request type %d", req.RequestType)
	}

	res := &api.RestResponse{}
	if err == nil {
		res.Data, err = json.Marshal(data)
	}
	if err != nil {
		res.ResponseErr = err
	}
	req.ResponseCh <- res
}

func newPeerSummary(ps *peerState) *PeerSummary {
	rib := ps.peer.Rib()
	return &PeerSummary{
		ID:           ps.peer.ID,
		AS:           ps.peer.AS,
		InboundPeers: append([]string(nil), ps.conf.InboundPeers...),
		Tables: map[string]int{
			"input":  rib.Input.Len(),
			"local":  rib.Local.Len(),
			"output": rib.Output.Len(),
		},
	}
}

func (s *PctrlServer) peerSummaries() []*PeerSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]*PeerSummary, 0, len(s.peers))
	for _, ps := range s.peers {
		summaries = append(summaries, newPeerSummary(ps))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].AS < summaries[j].AS })
	return summaries
}

func (s *PctrlServer) peerSummary(as uint32) (*PeerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, ok := s.peers[as]
	if !ok {
		return nil, fmt.Errorf("peer as%d does not exist", as)
	}
	return newPeerSummary(ps), nil
}

func (s *PctrlServer) ribRows(as uint32, name string) ([]*table.Route, error) {
	p := s.Peer(as)
	if p == nil {
		return nil, fmt.Errorf("peer as%d does not exist", as)
	}
	tbl := p.Rib().Stage(name)
	if tbl == nil {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	routes := make([]*table.Route, 0, tbl.Len())
	tbl.Walk(func(r *table.Route) bool {
		routes = append(routes, r)
		return false
	})
	return routes, nil
}

func (s *PctrlServer) lookupRoute(as uint32, addr string) (*table.Route, error) {
	p := s.Peer(as)
	if p == nil {
		return nil, fmt.Errorf("peer as%d does not exist", as)
	}
	r := p.Rib().Local.LongestMatch(addr)
	if r == nil {
		return nil, fmt.Errorf("no route for %s", addr)
	}
	return r, nil
}

func (s *PctrlServer) forwardingRecords(as uint32) (map[string]*ForwardingInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, ok := s.peers[as]
	if !ok {
		return nil, fmt.Errorf("peer as%d does not exist", as)
	}
	return ps.pool.Snapshot(), nil
}
