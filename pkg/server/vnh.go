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
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ForwardingInfo is the forwarding equivalence class record for one
// prefix: the virtual next hop that downstream announcements carry in
// place of the real next hop. The ID correlates the record with its
// installation on the fabric.
type ForwardingInfo struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix"`
	VNH    string `json:"vnh"`
}

// ForwardingLookup resolves a prefix to its forwarding record.
type ForwardingLookup interface {
	Lookup(prefix string) (*ForwardingInfo, bool)
}

// MACLookup reports the MAC binding installed for a virtual next hop.
type MACLookup interface {
	MAC(vnh string) (string, bool)
}

// VNHPool hands out virtual next hops from a configured IPv4 range. A
// prefix keeps its first assigned address for the process lifetime, so
// announce and withdraw commands for one prefix always name the same
// next hop.
type VNHPool struct {
	mu       sync.Mutex
	network  *net.IPNet
	base     uint32
	next     uint32
	byPrefix map[string]*ForwardingInfo
}

func NewVNHPool(cidr string) (*VNHPool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	v4 := network.IP.To4()
	if v4 == nil {
		return nil, fmt.Errorf("vnh range %s is not an IPv4 network", cidr)
	}
	return &VNHPool{
		network:  network,
		base:     binary.BigEndian.Uint32(v4),
		next:     1,
		byPrefix: make(map[string]*ForwardingInfo),
	}, nil
}

// Assign returns the forwarding record for prefix, allocating the next
// free address of the range on first use.
func (p *VNHPool) Assign(prefix string) (*ForwardingInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fi, ok := p.byPrefix[prefix]; ok {
		return fi, nil
	}
	addr := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(addr, p.base+p.next)
	if !p.network.Contains(addr) {
		return nil, fmt.Errorf("vnh range %s exhausted", p.network)
	}
	p.next++
	fi := &ForwardingInfo{ID: uuid.NewString(), Prefix: prefix, VNH: addr.String()}
	p.byPrefix[prefix] = fi
	return fi, nil
}

// Lookup returns the record already assigned to prefix.
func (p *VNHPool) Lookup(prefix string) (*ForwardingInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fi, ok := p.byPrefix[prefix]
	return fi, ok
}

func (p *VNHPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byPrefix)
}

// Snapshot copies the current prefix to forwarding record map.
func (p *VNHPool) Snapshot() map[string]*ForwardingInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := make(map[string]*ForwardingInfo, len(p.byPrefix))
	for prefix, fi := range p.byPrefix {
		m[prefix] = fi
	}
	return m
}

// MACStore tracks the MAC binding installed for each virtual next hop.
// The propagation engine only reads it; bindings arrive from the
// configuration and from the fabric once a forwarding class installs.
type MACStore struct {
	mu   sync.RWMutex
	macs map[string]string
}

func NewMACStore() *MACStore {
	return &MACStore{macs: make(map[string]string)}
}

func (s *MACStore) MAC(vnh string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mac, ok := s.macs[vnh]
	return mac, ok
}

func (s *MACStore) Set(vnh, mac string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macs[vnh] = mac
}

func (s *MACStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.macs)
}

func (s *MACStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]string, len(s.macs))
	for vnh, mac := range s.macs {
		m[vnh] = mac
	}
	return m
}
