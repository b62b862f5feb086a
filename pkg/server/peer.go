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
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/config"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/metrics"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
)

// Peer is the route processing engine for one external BGP neighbor
// session: it translates raw feed events into RIB mutations and change
// events, selects the best path per prefix, and computes the announce
// and withdraw commands the data plane side needs when the best path
// moves. All three RIB stages and the lock registry belong to this peer
// alone; nothing is shared across peers.
//
// Changes for distinct prefixes may be processed concurrently. A change
// is decided and propagated as one unit under its prefix lock, so a
// propagation read can never observe the local stage ahead of or behind
// the decision that triggered it. A session reset bumps the peer's
// generation; changes stamped with an older generation refer to state
// that has been cleared and are discarded instead of applied.
type Peer struct {
	ID string
	AS uint32

	inbound map[string]struct{}

	rib   *table.Rib
	locks *table.LockRegistry

	gen    atomic.Uint64
	resets atomic.Uint64
}

func NewPeer(c *config.Peer) *Peer {
	p := &Peer{
		ID:      c.ID,
		AS:      c.AS,
		inbound: make(map[string]struct{}, len(c.InboundPeers)),
		rib:     table.NewRib(),
		locks:   table.NewLockRegistry(),
	}
	for _, ip := range c.InboundPeers {
		p.inbound[ip] = struct{}{}
	}
	return p
}

// Accepts reports whether this peer takes routes advertised by neighbor.
func (p *Peer) Accepts(neighbor string) bool {
	_, ok := p.inbound[neighbor]
	return ok
}

// Rib exposes the peer's RIB for the query surface. Single reads through
// it are structurally consistent; logically related read and write
// sequences stay inside this package under the prefix locks.
func (p *Peer) Rib() *table.Rib {
	return p.rib
}

// Generation returns the current session generation.
func (p *Peer) Generation() uint64 {
	return p.gen.Load()
}

func (p *Peer) logFields() log.Fields {
	return log.Fields{
		"Topic": "Peer",
		"Key":   p.ID,
	}
}

// Translate converts one raw feed event into input stage mutations and
// the normalized changes the decision process consumes. Announce and
// withdraw payloads are mutually exclusive per event; a session down
// event invalidates the whole peer state.
func (p *Peer) Translate(ev *Event) []*Change {
	if ev.Neighbor == nil {
		return nil
	}
	neighbor := ev.Neighbor.IP

	if ev.Neighbor.Down() {
		log.WithFields(p.logFields()).Infof("Session to neighbor %s is down, clearing all tables", neighbor)
		return p.sessionDown(neighbor)
	}

	upd := ev.Neighbor.update()
	if upd == nil {
		return nil
	}

	origin := table.ORIGIN_NONE
	var (
		asPath          table.ASPath
		med             *uint32
		communities     []table.Community
		atomicAggregate bool
	)
	if attr := upd.Attribute; attr != nil {
		origin = table.OriginFromString(attr.Origin)
		asPath = attr.ASPath
		med = attr.Med
		communities = attr.Community
		atomicAggregate = attr.AtomicAggregate
	}

	var changes []*Change
	switch {
	case upd.Announce != nil:
		for _, nh := range upd.Announce.NextHops() {
			for _, prefix := range upd.Announce.Routes[nh] {
				r := table.NewRoute(prefix, neighbor, nh, origin, asPath, communities, med, atomicAggregate)
				p.locks.Lock(prefix)
				p.rib.AddRoute(p.rib.Input, r)
				gen := p.gen.Load()
				p.locks.Unlock(prefix)
				changes = append(changes, &Change{Kind: CHANGE_ANNOUNCE, Route: r, gen: gen})
			}
		}
	case upd.Withdraw != nil:
		for _, prefix := range upd.Withdraw.Prefixes {
			p.locks.Lock(prefix)
			r := p.rib.DeleteNeighborRoute(p.rib.Input, prefix, neighbor)
			gen := p.gen.Load()
			p.locks.Unlock(prefix)
			if r == nil {
				log.WithFields(p.logFields()).Debugf("Withdraw for unknown route %s from neighbor %s", prefix, neighbor)
				continue
			}
			changes = append(changes, &Change{Kind: CHANGE_WITHDRAW, Route: r, gen: gen})
		}
	}
	return changes
}

// sessionDown emits one withdraw per input row learned from neighbor,
// then clears all three stages. Each Peer owns exactly one session, so a
// down neighbor means the whole peer state is stale, not just that
// neighbor's rows. The emitted changes carry the pre-reset generation:
// whatever of them is still queued when the session comes back operates
// on cleared state and is discarded by Process.
func (p *Peer) sessionDown(neighbor string) []*Change {
	p.locks.Lock(table.GlobalLockKey)
	defer p.locks.Unlock(table.GlobalLockKey)

	rows := p.rib.Input.RoutesByNeighbor(neighbor)
	gen := p.gen.Load()
	changes := make([]*Change, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, &Change{Kind: CHANGE_WITHDRAW, Route: r, gen: gen})
	}
	p.rib.Clear()
	p.gen.Add(1)
	p.resets.Add(1)
	return changes
}

// ProcessNotification applies a control notification. A shutdown clears
// all three stages and invalidates in flight work, like a session down
// without the per row withdraws.
func (p *Peer) ProcessNotification(ev *Event) {
	if !ev.Shutdown() {
		return
	}
	p.locks.Lock(table.GlobalLockKey)
	p.rib.Clear()
	p.gen.Add(1)
	p.resets.Add(1)
	p.locks.Unlock(table.GlobalLockKey)
	log.WithFields(p.logFields()).Info("Cleared all tables on shutdown notification")
}

// Decide recomputes the best path for the prefix touched by one change
// and updates the local stage when it moves.
func (p *Peer) Decide(ch *Change) {
	p.locks.Lock(ch.Prefix())
	defer p.locks.Unlock(ch.Prefix())
	p.decideLocked(ch)
}

func (p *Peer) decideLocked(ch *Change) {
	switch ch.Kind {
	case CHANGE_ANNOUNCE:
		p.decideAnnounceLocked(ch.Route)
	case CHANGE_WITHDRAW:
		p.decideWithdrawLocked(ch.Route)
	}
}

func (p *Peer) decideAnnounceLocked(r *table.Route) {
	var newBest *table.Route

	cur := p.rib.Local.Get(r.Prefix)
	if cur == nil {
		// first route for this prefix
		newBest = r
	} else if r.Better(cur) {
		newBest = r
	} else if cur.Better(r) && r.Neighbor == cur.Neighbor {
		// The best path neighbor degraded its own route. The shortcut
		// comparison cannot tell which of the remaining rows wins now,
		// so rescan the whole input stage for this prefix. The
		// translator already wrote r there.
		routes := p.rib.Input.GetAll(r.Prefix)
		if len(routes) > 0 {
			table.SortRoutes(routes)
			newBest = routes[0]
		}
	}
	// A worse route from a different neighbor never displaces the
	// current best and triggers no rescan.

	if newBest != nil {
		p.rib.UpdateRoute(p.rib.Local, newBest)
	}
}

func (p *Peer) decideWithdrawLocked(r *table.Route) {
	cur := p.rib.Local.Get(r.Prefix)
	if cur == nil {
		log.WithFields(p.logFields()).Errorf("Withdraw received for prefix %s which is not in the local table", r.Prefix)
		return
	}
	if r.Neighbor != cur.Neighbor {
		log.WithFields(p.logFields()).Debugf("Withdraw for prefix %s has no impact on the best path", r.Prefix)
		return
	}
	p.rib.DeleteRoute(p.rib.Local, r.Prefix)
	routes := p.rib.Input.GetAll(r.Prefix)
	if len(routes) > 0 {
		table.SortRoutes(routes)
		p.rib.UpdateRoute(p.rib.Local, routes[0])
	}
}

// propagation accumulates the output of one propagation batch. New
// forwarding class records are deduplicated by virtual next hop.
type propagation struct {
	fecs    []*ForwardingInfo
	actions []*Action
	seen    map[string]bool
}

func newPropagation() *propagation {
	return &propagation{seen: make(map[string]bool)}
}

// Propagate computes the downstream effect of a batch of decided
// changes: output stage refreshes, newly needed forwarding class
// records, and one command per outbound port per changed prefix. A
// failure to compute one prefix's actions never aborts the batch.
func (p *Peer) Propagate(changes []*Change, prefixToForwarding map[string]*ForwardingInfo, vnhToMAC map[string]string, ports []config.Port) ([]*ForwardingInfo, []*Action) {
	out := newPropagation()
	for _, ch := range changes {
		p.locks.Lock(ch.Prefix())
		p.propagateLocked(ch, forwardingMap(prefixToForwarding), macMap(vnhToMAC), ports, out)
		p.locks.Unlock(ch.Prefix())
	}
	return out.fecs, out.actions
}

func (p *Peer) propagateLocked(ch *Change, fwd ForwardingLookup, macs MACLookup, ports []config.Port, out *propagation) {
	prefix := ch.Prefix()
	prev := p.rib.Output.Get(prefix)
	best := p.rib.Local.Get(prefix)

	switch ch.Kind {
	case CHANGE_ANNOUNCE:
		if best == nil {
			// The decision for this change ran under the same prefix
			// lock, so an absent best here is a real inconsistency, not
			// a read race. Skip the change, the batch goes on.
			log.WithFields(p.logFields()).Errorf("No best route for prefix %s after an announce", prefix)
			return
		}
		p.announceBestLocked(best, fwd, macs, ports, out)
	case CHANGE_WITHDRAW:
		if best != nil {
			// Another path survived the withdrawal; downstream still
			// needs the refreshed best route.
			p.announceBestLocked(best, fwd, macs, ports, out)
			return
		}
		if prev == nil {
			return
		}
		fi, ok := fwd.Lookup(prefix)
		if !ok {
			metrics.MissingForwardingTotal.WithLabelValues(p.ID).Inc()
			log.WithFields(p.logFields()).Errorf("No forwarding record for prefix %s, dropping withdraw", prefix)
			return
		}
		p.rib.DeleteRoute(p.rib.Output, prefix)
		for _, port := range ports {
			out.actions = append(out.actions, &Action{
				Kind:    CHANGE_WITHDRAW,
				Port:    port.IP,
				Prefix:  prefix,
				NextHop: fi.VNH,
			})
		}
	}
}

// announceBestLocked refreshes the output stage to the current best
// route and emits one announce per outbound port. The output write is
// idempotent and happens even when the best route did not change.
func (p *Peer) announceBestLocked(best *table.Route, fwd ForwardingLookup, macs MACLookup, ports []config.Port, out *propagation) {
	fi, ok := fwd.Lookup(best.Prefix)
	if !ok {
		metrics.MissingForwardingTotal.WithLabelValues(p.ID).Inc()
		log.WithFields(p.logFields()).Errorf("No forwarding record for prefix %s, dropping announce", best.Prefix)
		return
	}
	p.rib.UpdateRoute(p.rib.Output, best)
	if _, bound := macs.MAC(fi.VNH); !bound && !out.seen[fi.VNH] {
		out.seen[fi.VNH] = true
		out.fecs = append(out.fecs, fi)
	}
	for _, port := range ports {
		out.actions = append(out.actions, &Action{
			Kind:    CHANGE_ANNOUNCE,
			Port:    port.IP,
			Prefix:  best.Prefix,
			NextHop: fi.VNH,
			ASPath:  best.ASPath.Flatten(),
		})
	}
}

// Process decides and propagates one change as a single serialized unit
// under its prefix lock, so the propagation read can never observe the
// local stage before the decision write landed. Changes stamped with a
// generation older than the last session reset are discarded.
func (p *Peer) Process(ch *Change, fwd ForwardingLookup, macs MACLookup, ports []config.Port) ([]*ForwardingInfo, []*Action) {
	start := time.Now()
	prefix := ch.Prefix()

	p.locks.Lock(prefix)
	if ch.gen != p.gen.Load() {
		p.locks.Unlock(prefix)
		metrics.StaleChangesTotal.WithLabelValues(p.ID).Inc()
		log.WithFields(p.logFields()).Debugf("Discarding stale %s for prefix %s", ch.Kind, prefix)
		return nil, nil
	}
	out := newPropagation()
	p.decideLocked(ch)
	p.propagateLocked(ch, fwd, macs, ports, out)
	p.locks.Unlock(prefix)

	metrics.ChangesTotal.WithLabelValues(p.ID, ch.Kind.String()).Inc()
	metrics.DecideDuration.WithLabelValues(p.ID).Observe(time.Since(start).Seconds())
	if len(out.fecs) > 0 {
		metrics.NewFECsTotal.WithLabelValues(p.ID).Add(float64(len(out.fecs)))
	}
	for _, a := range out.actions {
		metrics.ActionsTotal.WithLabelValues(p.ID, a.Kind.String()).Inc()
	}
	return out.fecs, out.actions
}

// Stats snapshots the peer state the metrics collector exports.
func (p *Peer) Stats() metrics.PeerRibStats {
	return metrics.PeerRibStats{
		Peer: p.ID,
		Tables: map[string]int{
			"input":  p.rib.Input.Len(),
			"local":  p.rib.Local.Len(),
			"output": p.rib.Output.Len(),
		},
		Locks:   p.locks.Len(),
		Pending: p.rib.Pending(),
		Commits: p.rib.Commits(),
		Resets:  p.resets.Load(),
	}
}

type forwardingMap map[string]*ForwardingInfo

func (m forwardingMap) Lookup(prefix string) (*ForwardingInfo, bool) {
	fi, ok := m[prefix]
	return fi, ok
}

type macMap map[string]string

func (m macMap) MAC(vnh string) (string, bool) {
	mac, ok := m[vnh]
	return mac, ok
}
