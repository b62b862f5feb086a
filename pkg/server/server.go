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
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"

	farm "github.com/dgryski/go-farm"
	log "github.com/sirupsen/logrus"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/channels"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/config"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/metrics"
	"github.com/sdn-ixp/sdx-parallel/pkg/api"
)

// peerState bundles one hosted engine with its collaborators: the
// virtual next hop pool, the MAC binding store, and the outbound ports
// snapshot handed to propagation.
type peerState struct {
	conf  *config.Peer
	peer  *Peer
	pool  *VNHPool
	macs  *MACStore
	ports []config.Port
}

// workItem is one change queued for a decision worker together with
// everything its peer needs to propagate it.
type workItem struct {
	ps     *peerState
	change *Change
	ports  []config.Port
}

// PctrlServer hosts the route processing engine of every configured
// participant. Feed events fan out to the peers that accept the
// advertising neighbor; the resulting changes are sharded over a fixed
// set of decision workers by prefix hash, so changes for one prefix are
// always processed in order by the same worker while distinct prefixes
// proceed in parallel.
type PctrlServer struct {
	mu    sync.RWMutex
	peers map[uint32]*peerState

	workers []*channels.InfiniteChannel
	wg      sync.WaitGroup

	sender ActionSender

	// RestReqCh carries queries from the REST front end. ServeApiRequests
	// answers them.
	RestReqCh chan *api.RestRequest

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPctrlServer() *PctrlServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &PctrlServer{
		peers:      make(map[uint32]*peerState),
		RestReqCh:  make(chan *api.RestRequest, 8),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	s.workers = make([]*channels.InfiniteChannel, n)
	for i := range s.workers {
		s.workers[i] = channels.NewInfiniteChannel()
		s.wg.Add(1)
		go s.runWorker(s.workers[i])
	}
	log.WithFields(log.Fields{
		"Topic": "Server",
	}).Infof("Started %d decision workers", n)
	return s
}

// SetSender installs the outbound side of the fabric bus. Without one
// the server still maintains its RIBs but emits nothing.
func (s *PctrlServer) SetSender(snd ActionSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = snd
}

// ShutdownCh is closed when a shutdown notification arrives on the
// feed. The daemon treats it like a termination signal.
func (s *PctrlServer) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Stop drains the decision workers and releases them. Queued changes
// are processed, not discarded; the feed must already be stopped.
func (s *PctrlServer) Stop() {
	for _, w := range s.workers {
		w.Close()
	}
	s.wg.Wait()
	s.cancel()
	log.WithFields(log.Fields{
		"Topic": "Server",
	}).Info("Stopped")
}

func (s *PctrlServer) runWorker(ch *channels.InfiniteChannel) {
	defer s.wg.Done()
	for m := range ch.Out() {
		it := m.(*workItem)
		fecs, actions := it.ps.peer.Process(it.change, it.ps.pool, it.ps.macs, it.ports)
		s.mu.RLock()
		snd := s.sender
		s.mu.RUnlock()
		if snd == nil {
			continue
		}
		if len(fecs) > 0 {
			snd.SendFECs(s.ctx, fecs)
		}
		if len(actions) > 0 {
			snd.SendActions(s.ctx, actions)
		}
	}
}

func (s *PctrlServer) dispatch(it *workItem) {
	idx := farm.Hash64([]byte(it.change.Prefix())) % uint64(len(s.workers))
	s.workers[idx].Push(it)
}

// HandleRecord decodes one raw feed record and dispatches it. Malformed
// records are counted and dropped; the feed marches on.
func (s *PctrlServer) HandleRecord(data []byte) {
	ev, err := ParseEvent(data)
	if err != nil {
		metrics.FeedDecodeErrorsTotal.Inc()
		log.WithFields(log.Fields{
			"Topic": "Server",
		}).Errorf("Discarding malformed event: %s", err)
		return
	}
	s.DispatchEvent(ev)
}

func eventType(ev *Event) string {
	if ev.Notification != "" {
		return "notification"
	}
	if ev.Neighbor.Down() {
		return "state"
	}
	if upd := ev.Neighbor.update(); upd != nil {
		if upd.Announce != nil {
			return "announce"
		}
		if upd.Withdraw != nil {
			return "withdraw"
		}
	}
	return "other"
}

// DispatchEvent routes one decoded event to every hosted peer it
// concerns. Translation runs inline so input stage writes keep the feed
// order; the resulting changes fan out to the decision workers.
func (s *PctrlServer) DispatchEvent(ev *Event) {
	metrics.FeedEventsTotal.WithLabelValues(eventType(ev)).Inc()

	if ev.Notification != "" {
		s.mu.RLock()
		states := make([]*peerState, 0, len(s.peers))
		for _, ps := range s.peers {
			states = append(states, ps)
		}
		s.mu.RUnlock()
		for _, ps := range states {
			ps.peer.ProcessNotification(ev)
		}
		if ev.Shutdown() {
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
		}
		return
	}

	s.mu.RLock()
	targets := make([]*workItem, 0, len(s.peers))
	for _, ps := range s.peers {
		if ps.peer.Accepts(ev.Neighbor.IP) {
			targets = append(targets, &workItem{ps: ps, ports: ps.ports})
		}
	}
	s.mu.RUnlock()

	for _, t := range targets {
		changes := t.ps.peer.Translate(ev)
		for _, ch := range changes {
			if ch.Kind != CHANGE_ANNOUNCE {
				continue
			}
			if _, err := t.ps.pool.Assign(ch.Prefix()); err != nil {
				log.WithFields(log.Fields{
					"Topic": "Server",
					"Key":   t.ps.peer.ID,
				}).Errorf("No virtual next hop for prefix %s: %s", ch.Prefix(), err)
			}
		}
		for _, ch := range changes {
			s.dispatch(&workItem{ps: t.ps, change: ch, ports: t.ports})
		}
	}
}

// AddPeer starts hosting the engine for one configured participant.
func (s *PctrlServer) AddPeer(c *config.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[c.AS]; ok {
		return fmt.Errorf("peer as%d already exists", c.AS)
	}
	ps, err := newPeerState(c)
	if err != nil {
		return err
	}
	s.peers[c.AS] = ps
	log.WithFields(log.Fields{
		"Topic": "Server",
		"Key":   ps.peer.ID,
	}).Info("Added peer")
	return nil
}

// DeletePeer stops hosting a participant. The engine's tables clear and
// its in flight work is invalidated before the reference drops.
func (s *PctrlServer) DeletePeer(c *config.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.peers[c.AS]
	if !ok {
		return fmt.Errorf("peer as%d does not exist", c.AS)
	}
	ps.peer.ProcessNotification(&Event{Notification: "shutdown"})
	delete(s.peers, c.AS)
	log.WithFields(log.Fields{
		"Topic": "Server",
		"Key":   ps.peer.ID,
	}).Info("Deleted peer")
	return nil
}

// UpdatePeer applies a changed participant configuration. Outbound port
// and MAC binding changes apply in place; a changed inbound session set
// or virtual next hop range rebuilds the engine, dropping its learned
// state the same way a session reset would.
func (s *PctrlServer) UpdatePeer(c *config.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.peers[c.AS]
	if !ok {
		return fmt.Errorf("peer as%d does not exist", c.AS)
	}
	if !reflect.DeepEqual(ps.conf.InboundPeers, c.InboundPeers) || ps.conf.VNHRange != c.VNHRange {
		next, err := newPeerState(c)
		if err != nil {
			return err
		}
		ps.peer.ProcessNotification(&Event{Notification: "shutdown"})
		s.peers[c.AS] = next
		log.WithFields(log.Fields{
			"Topic": "Server",
			"Key":   next.peer.ID,
		}).Warn("Rebuilt peer engine, inbound sessions or next hop range changed")
		return nil
	}
	ps.conf = c
	ps.ports = append([]config.Port(nil), c.OutboundPorts...)
	for vnh, mac := range c.MACBindings {
		ps.macs.Set(vnh, mac)
	}
	log.WithFields(log.Fields{
		"Topic": "Server",
		"Key":   ps.peer.ID,
	}).Info("Updated peer")
	return nil
}

func newPeerState(c *config.Peer) (*peerState, error) {
	pool, err := NewVNHPool(c.VNHRange)
	if err != nil {
		return nil, err
	}
	macs := NewMACStore()
	for vnh, mac := range c.MACBindings {
		macs.Set(vnh, mac)
	}
	return &peerState{
		conf:  c,
		peer:  NewPeer(c),
		pool:  pool,
		macs:  macs,
		ports: append([]config.Port(nil), c.OutboundPorts...),
	}, nil
}

// Peers returns the hosted engines sorted by AS number.
func (s *PctrlServer) Peers() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]*Peer, 0, len(s.peers))
	for _, ps := range s.peers {
		peers = append(peers, ps.peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].AS < peers[j].AS })
	return peers
}

// Peer returns the engine hosting as, or nil.
func (s *PctrlServer) Peer(as uint32) *Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.peers[as]; ok {
		return ps.peer
	}
	return nil
}

// Forwarding returns the virtual next hop assignments of the peer
// hosting as.
func (s *PctrlServer) Forwarding(as uint32) map[string]*ForwardingInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.peers[as]; ok {
		return ps.pool.Snapshot()
	}
	return nil
}

// RibStats implements the metrics stats provider.
func (s *PctrlServer) RibStats() []metrics.PeerRibStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]metrics.PeerRibStats, 0, len(s.peers))
	for _, ps := range s.peers {
		stats = append(stats, ps.peer.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Peer < stats[j].Peer })
	return stats
}
