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
	"strings"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
)

// Event is one decoded record from the route server feed: either a
// neighbor update (session state change, announcement or withdrawal) or
// a bare control notification.
type Event struct {
	Neighbor     *NeighborEvent `json:"neighbor,omitempty"`
	Notification string         `json:"notification,omitempty"`
}

func (e *Event) Shutdown() bool {
	return e.Notification == "shutdown"
}

// NeighborEvent carries the advertising neighbor's address plus either a
// session state or an update payload. Some feed emitters nest the update
// under a message envelope; both forms decode.
type NeighborEvent struct {
	IP      string         `json:"ip"`
	State   string         `json:"state,omitempty"`
	Update  *UpdateMessage `json:"update,omitempty"`
	Message *EventMessage  `json:"message,omitempty"`
}

type EventMessage struct {
	Update *UpdateMessage `json:"update,omitempty"`
}

func (n *NeighborEvent) Down() bool {
	return n.State == "down"
}

func (n *NeighborEvent) update() *UpdateMessage {
	if n.Update != nil {
		return n.Update
	}
	if n.Message != nil {
		return n.Message.Update
	}
	return nil
}

// UpdateMessage is the update payload of a neighbor event. Announce and
// withdraw are mutually exclusive per message; withdraw is only inspected
// when announce is absent.
type UpdateMessage struct {
	Attribute *Attribute   `json:"attribute,omitempty"`
	Announce  *AnnounceSet `json:"announce,omitempty"`
	Withdraw  *WithdrawSet `json:"withdraw,omitempty"`
}

// Attribute carries the path attributes shared by every route of one
// update message. Origin stays a string here; an absent attribute must
// stay distinguishable from an explicit igp.
type Attribute struct {
	Origin          string            `json:"origin,omitempty"`
	ASPath          table.ASPath      `json:"as-path,omitempty"`
	Med             *uint32           `json:"med,omitempty"`
	Community       []table.Community `json:"community,omitempty"`
	AtomicAggregate bool              `json:"atomic-aggregate,omitempty"`
}

// AnnounceSet maps each announced next hop to the prefixes reachable
// through it.
type AnnounceSet struct {
	Routes map[string][]string
}

// NextHops returns the announced next hops in a stable order.
func (a *AnnounceSet) NextHops() []string {
	hops := make([]string, 0, len(a.Routes))
	for nh := range a.Routes {
		hops = append(hops, nh)
	}
	sort.Strings(hops)
	return hops
}

// UnmarshalJSON accepts both the bare next-hop keyed form and the
// address family wrapped form, with prefixes given either as a list or
// as object keys.
func (a *AnnounceSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	routes := make(map[string][]string)
	add := func(hops map[string]json.RawMessage) error {
		for nh, val := range hops {
			prefixes, err := prefixSet(val)
			if err != nil {
				return fmt.Errorf("invalid announce for next-hop %s: %s", nh, err)
			}
			routes[nh] = append(routes[nh], prefixes...)
		}
		return nil
	}
	direct := make(map[string]json.RawMessage)
	for key, val := range raw {
		if isAddressFamily(key) {
			var hops map[string]json.RawMessage
			if err := json.Unmarshal(val, &hops); err != nil {
				return fmt.Errorf("invalid announce family %s: %s", key, err)
			}
			if err := add(hops); err != nil {
				return err
			}
			continue
		}
		direct[key] = val
	}
	if err := add(direct); err != nil {
		return err
	}
	for nh := range routes {
		sort.Strings(routes[nh])
	}
	a.Routes = routes
	return nil
}

// WithdrawSet is the set of withdrawn prefixes.
type WithdrawSet struct {
	Prefixes []string
}

// UnmarshalJSON accepts a prefix list, a prefix keyed object, or the
// address family wrapped form of either.
func (w *WithdrawSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		sort.Strings(list)
		w.Prefixes = list
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	prefixes := make([]string, 0, len(raw))
	for key, val := range raw {
		if isAddressFamily(key) {
			inner, err := prefixSet(val)
			if err != nil {
				return fmt.Errorf("invalid withdraw family %s: %s", key, err)
			}
			prefixes = append(prefixes, inner...)
			continue
		}
		prefixes = append(prefixes, key)
	}
	sort.Strings(prefixes)
	w.Prefixes = prefixes
	return nil
}

func isAddressFamily(key string) bool {
	return strings.HasPrefix(key, "ipv4 ") || strings.HasPrefix(key, "ipv6 ")
}

// prefixSet decodes a prefix collection given either as a list or as
// object keys.
func prefixSet(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		sort.Strings(list)
		return list, nil
	}
	var set map[string]json.RawMessage
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	list = make([]string, 0, len(set))
	for p := range set {
		list = append(list, p)
	}
	sort.Strings(list)
	return list, nil
}

// ParseEvent decodes one feed record.
func ParseEvent(data []byte) (*Event, error) {
	ev := &Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	if ev.Neighbor == nil && ev.Notification == "" {
		return nil, fmt.Errorf("event carries neither a neighbor update nor a notification")
	}
	if ev.Neighbor != nil && ev.Neighbor.IP == "" {
		return nil, fmt.Errorf("neighbor event without an address")
	}
	return ev, nil
}

// ChangeKind tags a normalized route change.
type ChangeKind uint8

const (
	CHANGE_ANNOUNCE ChangeKind = iota
	CHANGE_WITHDRAW
)

func (k ChangeKind) String() string {
	switch k {
	case CHANGE_ANNOUNCE:
		return "announce"
	case CHANGE_WITHDRAW:
		return "withdraw"
	}
	return fmt.Sprintf("unknown(%d)", k)
}

func (k ChangeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Change is one normalized route change emitted by the update translator
// and consumed by the decision process. The generation it carries is the
// peer's session generation at emission time; a change whose generation
// no longer matches operates on state that has since been cleared and is
// discarded instead of applied.
type Change struct {
	Kind  ChangeKind
	Route *table.Route

	gen uint64
}

func (c *Change) Prefix() string {
	return c.Route.Prefix
}

func (c *Change) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.Route)
}
