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
	"strconv"
	"strings"
)

// Action is one downstream command addressed to a participant border
// router port. Announces carry the virtual next hop and the best
// route's flattened AS path; withdraws carry the virtual next hop the
// prefix was announced with.
type Action struct {
	Kind    ChangeKind `json:"kind"`
	Port    string     `json:"port"`
	Prefix  string     `json:"prefix"`
	NextHop string     `json:"next-hop"`
	ASPath  []uint32   `json:"as-path,omitempty"`
}

// Command renders the action as the textual route server session
// command.
func (a *Action) Command() string {
	var b strings.Builder
	switch a.Kind {
	case CHANGE_ANNOUNCE:
		fmt.Fprintf(&b, "neighbor %s announce route %s next-hop %s", a.Port, a.Prefix, a.NextHop)
		elems := make([]string, 0, len(a.ASPath)+2)
		elems = append(elems, "(")
		for _, asn := range a.ASPath {
			elems = append(elems, strconv.FormatUint(uint64(asn), 10))
		}
		elems = append(elems, ")")
		fmt.Fprintf(&b, " as-path [ %s ]", strings.Join(elems, " "))
	case CHANGE_WITHDRAW:
		fmt.Fprintf(&b, "neighbor %s withdraw route %s next-hop %s", a.Port, a.Prefix, a.NextHop)
	}
	return b.String()
}

func (a *Action) String() string {
	return a.Command()
}

// ActionSender carries rendered commands and newly needed forwarding
// class records to the exchange fabric.
type ActionSender interface {
	SendActions(ctx context.Context, actions []*Action)
	SendFECs(ctx context.Context, fecs []*ForwardingInfo)
}
