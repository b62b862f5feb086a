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
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
)

// Origin is the BGP origin attribute. An update that carries no origin
// attribute is represented by OriginNone, which ranks below every explicit
// origin code.
type Origin uint8

const (
	ORIGIN_IGP Origin = iota
	ORIGIN_EGP
	ORIGIN_INCOMPLETE
	ORIGIN_NONE
)

func (o Origin) String() string {
	switch o {
	case ORIGIN_IGP:
		return "igp"
	case ORIGIN_EGP:
		return "egp"
	case ORIGIN_INCOMPLETE:
		return "incomplete"
	}
	return ""
}

func OriginFromString(s string) Origin {
	switch s {
	case "igp":
		return ORIGIN_IGP
	case "egp":
		return ORIGIN_EGP
	case "incomplete":
		return ORIGIN_INCOMPLETE
	}
	return ORIGIN_NONE
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Origin) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = OriginFromString(s)
	return nil
}

// Community is one standard (asn, value) community.
type Community [2]uint16

func (c Community) String() string {
	return fmt.Sprintf("%d:%d", c[0], c[1])
}

func (c Community) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts both the "asn:value" form and the two element
// array form emitted by the update feed.
func (c *Community) UnmarshalJSON(data []byte) error {
	var pair [2]uint16
	if err := json.Unmarshal(data, &pair); err == nil {
		*c = pair
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	elems := strings.SplitN(s, ":", 2)
	if len(elems) != 2 {
		return fmt.Errorf("invalid community %q", s)
	}
	asn, err := strconv.ParseUint(elems[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid community %q: %s", s, err)
	}
	val, err := strconv.ParseUint(elems[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid community %q: %s", s, err)
	}
	*c = Community{uint16(asn), uint16(val)}
	return nil
}

// ASPath is an ordered list of path segments, each an ordered list of AS
// numbers. A plain sequence path has a single segment.
type ASPath [][]uint32

// UnmarshalJSON accepts both the flat list form and the nested segment
// form of the as-path attribute.
func (p *ASPath) UnmarshalJSON(data []byte) error {
	var segments [][]uint32
	if err := json.Unmarshal(data, &segments); err == nil {
		*p = segments
		return nil
	}
	var flat []uint32
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if len(flat) == 0 {
		*p = nil
		return nil
	}
	*p = ASPath{flat}
	return nil
}

// Flatten returns the AS numbers of every segment in order.
func (p ASPath) Flatten() []uint32 {
	l := make([]uint32, 0, p.Length())
	for _, seg := range p {
		l = append(l, seg...)
	}
	return l
}

func (p ASPath) Length() int {
	length := 0
	for _, seg := range p {
		length += len(seg)
	}
	return length
}

func (p ASPath) String() string {
	elems := make([]string, 0, p.Length())
	for _, seg := range p {
		for _, asn := range seg {
			elems = append(elems, strconv.FormatUint(uint64(asn), 10))
		}
	}
	return strings.Join(elems, " ")
}

func (p ASPath) clone() ASPath {
	if p == nil {
		return nil
	}
	c := make(ASPath, len(p))
	for i, seg := range p {
		c[i] = make([]uint32, len(seg))
		copy(c[i], seg)
	}
	return c
}

// Route is one BGP route advertisement as learned from a neighbor. Routes
// are immutable once constructed; NewRoute copies its slice arguments.
// Table lookups key routes by (prefix, neighbor), never by full content.
type Route struct {
	Prefix          string      `json:"prefix"`
	Neighbor        string      `json:"neighbor"`
	NextHop         string      `json:"next-hop"`
	Origin          Origin      `json:"origin"`
	ASPath          ASPath      `json:"as-path"`
	Communities     []Community `json:"communities,omitempty"`
	Med             *uint32     `json:"med,omitempty"`
	AtomicAggregate bool        `json:"atomic-aggregate,omitempty"`
}

func NewRoute(prefix, neighbor, nextHop string, origin Origin, asPath ASPath, communities []Community, med *uint32, atomicAggregate bool) *Route {
	r := &Route{
		Prefix:          prefix,
		Neighbor:        neighbor,
		NextHop:         nextHop,
		Origin:          origin,
		ASPath:          asPath.clone(),
		AtomicAggregate: atomicAggregate,
	}
	if len(communities) > 0 {
		r.Communities = make([]Community, len(communities))
		copy(r.Communities, communities)
	}
	if med != nil {
		m := *med
		r.Med = &m
	}
	return r
}

func (r *Route) String() string {
	return fmt.Sprintf("%s via %s next-hop %s as-path [%s]", r.Prefix, r.Neighbor, r.NextHop, r.ASPath)
}

// CommunitiesString returns the space joined asn:value form used on the
// wire and in logs.
func (r *Route) CommunitiesString() string {
	elems := make([]string, 0, len(r.Communities))
	for _, c := range r.Communities {
		elems = append(elems, c.String())
	}
	return strings.Join(elems, " ")
}

// Equal reports whether two routes carry identical content. It is the
// comparison behind "unchanged re-announcement" log lines, not the table
// identity.
func (r *Route) Equal(o *Route) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Prefix != o.Prefix || r.Neighbor != o.Neighbor || r.NextHop != o.NextHop {
		return false
	}
	if r.Origin != o.Origin || r.AtomicAggregate != o.AtomicAggregate {
		return false
	}
	if (r.Med == nil) != (o.Med == nil) {
		return false
	}
	if r.Med != nil && *r.Med != *o.Med {
		return false
	}
	if len(r.ASPath) != len(o.ASPath) || len(r.Communities) != len(o.Communities) {
		return false
	}
	for i, seg := range r.ASPath {
		if len(seg) != len(o.ASPath[i]) {
			return false
		}
		for j, asn := range seg {
			if asn != o.ASPath[i][j] {
				return false
			}
		}
	}
	for i, c := range r.Communities {
		if c != o.Communities[i] {
			return false
		}
	}
	return true
}

// Hash returns a farm hash over the route content, used to correlate log
// lines and in-flight change tracking for the same advertisement.
func (r *Route) Hash() uint64 {
	var buf bytes.Buffer
	buf.WriteString(r.Prefix)
	buf.WriteByte('|')
	buf.WriteString(r.Neighbor)
	buf.WriteByte('|')
	buf.WriteString(r.NextHop)
	buf.WriteByte('|')
	buf.WriteByte(byte(r.Origin))
	buf.WriteString(r.ASPath.String())
	buf.WriteByte('|')
	buf.WriteString(r.CommunitiesString())
	buf.WriteByte('|')
	if r.Med != nil {
		fmt.Fprintf(&buf, "%d", *r.Med)
	}
	if r.AtomicAggregate {
		buf.WriteByte('A')
	}
	return farm.Hash64(buf.Bytes())
}

// Better reports whether r strictly outranks o in the best path order.
// Content identical routes rank equal, so Better is false both ways for
// them; any two routes from different neighbors are always ordered.
func (r *Route) Better(o *Route) bool {
	return preferred(r, o) == r
}

// preferred returns the winner of the best path comparison between a and
// b, or nil when they rank equal. Each comparison step returns the
// preferred route or nil to fall through to the next step.
func preferred(a, b *Route) *Route {
	for _, f := range []func(a, b *Route) *Route{
		compareByOrigin,
		compareByASPathLength,
		compareByASPathValue,
		compareByMED,
		compareByNeighborAddress,
	} {
		if better := f(a, b); better != nil {
			return better
		}
	}
	return nil
}

// compareByOrigin prefers the lowest origin code (igp < egp < incomplete).
// A route whose update carried no origin attribute loses to any route with
// an explicit one.
func compareByOrigin(a, b *Route) *Route {
	if a.Origin < b.Origin {
		return a
	}
	if a.Origin > b.Origin {
		return b
	}
	return nil
}

// compareByASPathLength prefers the shortest AS path.
func compareByASPathLength(a, b *Route) *Route {
	la, lb := a.ASPath.Length(), b.ASPath.Length()
	if la < lb {
		return a
	}
	if la > lb {
		return b
	}
	return nil
}

// compareByASPathValue prefers the numerically smaller path among paths of
// equal length, comparing AS numbers hop by hop.
func compareByASPathValue(a, b *Route) *Route {
	pa, pb := a.ASPath.Flatten(), b.ASPath.Flatten()
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] < pb[i] {
			return a
		}
		if pa[i] > pb[i] {
			return b
		}
	}
	return nil
}

// compareByMED prefers the lowest MED. A missing MED compares as zero.
func compareByMED(a, b *Route) *Route {
	med := func(r *Route) uint32 {
		if r.Med == nil {
			return 0
		}
		return *r.Med
	}
	ma, mb := med(a), med(b)
	if ma < mb {
		return a
	}
	if ma > mb {
		return b
	}
	return nil
}

// compareByNeighborAddress prefers the lowest neighbor address. This is
// the final tie break, so the order over routes of one prefix is total:
// the input stage holds at most one row per neighbor.
func compareByNeighborAddress(a, b *Route) *Route {
	na := net.ParseIP(a.Neighbor)
	nb := net.ParseIP(b.Neighbor)
	if na == nil || nb == nil {
		switch strings.Compare(a.Neighbor, b.Neighbor) {
		case -1:
			return a
		case 1:
			return b
		}
		return nil
	}
	switch bytes.Compare(na.To16(), nb.To16()) {
	case -1:
		return a
	case 1:
		return b
	}
	return nil
}

// SortRoutes orders routes best first. The neighbor address tie break
// makes the result independent of the input order.
func SortRoutes(routes []*Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Better(routes[j])
	})
}

// IpToRadixkey expands an address into the per bit string key used by the
// radix tables.
func IpToRadixkey(b []byte, max uint8) string {
	var buffer bytes.Buffer
	for i := 0; i < len(b) && i < int(max); i++ {
		fmt.Fprintf(&buffer, "%08b", b[i])
	}
	return buffer.String()[:max]
}

// CidrToRadixkey converts a CIDR prefix to its radix key. A string that
// does not parse as CIDR degrades to an exact match key of itself.
func CidrToRadixkey(cidr string) string {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		return cidr
	}
	ones, _ := n.Mask.Size()
	return IpToRadixkey(n.IP, uint8(ones))
}

// AddrToRadixkey converts a host address to the full length key used for
// longest prefix lookups.
func AddrToRadixkey(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return IpToRadixkey(v4, 32)
	}
	return IpToRadixkey(ip.To16(), 128)
}
