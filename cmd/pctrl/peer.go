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
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
)

type peerSummary struct {
	ID           string         `json:"id"`
	AS           uint32         `json:"as"`
	InboundPeers []string       `json:"inbound-peers"`
	Tables       map[string]int `json:"tables"`
}

type forwardingEntry struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix"`
	VNH    string `json:"vnh"`
}

func formatAttrs(r *table.Route) string {
	s := []string{fmt.Sprintf("{Origin: %v}", r.Origin)}
	if r.Med != nil {
		s = append(s, fmt.Sprintf("{Med: %d}", *r.Med))
	}
	if len(r.Communities) > 0 {
		l := make([]string, 0, len(r.Communities))
		for _, c := range r.Communities {
			l = append(l, c.String())
		}
		s = append(s, fmt.Sprintf("{Community: %v}", l))
	}
	if r.AtomicAggregate {
		s = append(s, "AtomicAggregate")
	}
	return fmt.Sprint(s)
}

func showRoutes(routes []*table.Route) {
	maxPrefixLen := len("Network")
	maxNexthopLen := len("Next Hop")
	maxNeighborLen := len("From")
	for _, r := range routes {
		if len(r.Prefix) > maxPrefixLen {
			maxPrefixLen = len(r.Prefix)
		}
		if len(r.NextHop) > maxNexthopLen {
			maxNexthopLen = len(r.NextHop)
		}
		if len(r.Neighbor) > maxNeighborLen {
			maxNeighborLen = len(r.Neighbor)
		}
	}
	format := fmt.Sprintf("%%-%ds %%-%ds %%-%ds %%-10s %%-s\n", maxPrefixLen, maxNexthopLen, maxNeighborLen)
	fmt.Printf(format, "Network", "Next Hop", "From", "AS_PATH", "Attrs")
	for _, r := range routes {
		fmt.Printf(format, r.Prefix, r.NextHop, r.Neighbor, r.ASPath.String(), formatAttrs(r))
	}
}

func showPeers() error {
	b := get("peers")
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	peers := []peerSummary{}
	if err := json.Unmarshal(b, &peers); err != nil {
		return err
	}
	if globalOpts.Quiet {
		for _, p := range peers {
			fmt.Println(p.ID)
		}
		return nil
	}
	maxIDLen := len("Peer")
	maxInboundLen := len("Inbound")
	for _, p := range peers {
		if len(p.ID) > maxIDLen {
			maxIDLen = len(p.ID)
		}
		if l := len(strings.Join(p.InboundPeers, " ")); l > maxInboundLen {
			maxInboundLen = l
		}
	}
	format := fmt.Sprintf("%%-%ds %%8s %%-%ds %%8s %%8s %%8s\n", maxIDLen, maxInboundLen)
	fmt.Printf(format, "Peer", "AS", "Inbound", "Input", "Local", "Output")
	for _, p := range peers {
		fmt.Printf(format, p.ID, fmt.Sprint(p.AS), strings.Join(p.InboundPeers, " "),
			fmt.Sprint(p.Tables["input"]), fmt.Sprint(p.Tables["local"]), fmt.Sprint(p.Tables["output"]))
	}
	return nil
}

func showPeer(as string) error {
	b := get("peer/" + as)
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	p := peerSummary{}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	fmt.Printf("Participant %s, AS %d\n", p.ID, p.AS)
	fmt.Printf("  Inbound peers: %s\n", strings.Join(p.InboundPeers, ", "))
	fmt.Printf("  Routes: input %d, local %d, output %d\n",
		p.Tables["input"], p.Tables["local"], p.Tables["output"])
	return nil
}

func showPeerRib(as, name string) error {
	b := get("peer/" + as + "/rib/" + name)
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	routes := []*table.Route{}
	if err := json.Unmarshal(b, &routes); err != nil {
		return err
	}
	showRoutes(routes)
	return nil
}

func showPeerLookup(as, addr string) error {
	b := get("peer/" + as + "/lookup/" + addr)
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	r := &table.Route{}
	if err := json.Unmarshal(b, r); err != nil {
		return err
	}
	showRoutes([]*table.Route{r})
	return nil
}

func showPeerForwarding(as string) error {
	b := get("peer/" + as + "/forwarding")
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	m := map[string]*forwardingEntry{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	prefixes := make([]string, 0, len(m))
	for p := range m {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	maxPrefixLen := len("Network")
	for _, p := range prefixes {
		if len(p) > maxPrefixLen {
			maxPrefixLen = len(p)
		}
	}
	format := fmt.Sprintf("%%-%ds %%-15s %%-s\n", maxPrefixLen)
	fmt.Printf(format, "Network", "Next Hop", "FEC")
	for _, p := range prefixes {
		fmt.Printf(format, p, m[p].VNH, m[p].ID)
	}
	return nil
}

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use: cmdPeers,
		Run: func(cmd *cobra.Command, args []string) {
			if err := showPeers(); err != nil {
				exitWithError(err)
			}
		},
	}
}

func newPeerCmd() *cobra.Command {
	peerCmdImpl := &cobra.Command{}

	for _, v := range []string{cmdRib, cmdLookup, cmdForwarding} {
		name := v
		c := &cobra.Command{
			Use: name,
			Run: func(cmd *cobra.Command, args []string) {
				as := args[len(args)-1]
				var err error
				switch name {
				case cmdRib:
					stage := "local"
					if len(args) > 1 {
						stage = args[0]
					}
					err = showPeerRib(as, stage)
				case cmdLookup:
					if len(args) < 2 {
						err = fmt.Errorf("usage: pctrl peer <as> lookup <addr>")
					} else {
						err = showPeerLookup(as, args[0])
					}
				case cmdForwarding:
					err = showPeerForwarding(as)
				}
				if err != nil {
					exitWithError(err)
				}
			},
		}
		peerCmdImpl.AddCommand(c)
	}

	peerCmd := &cobra.Command{
		Use: cmdPeer,
		Run: func(cmd *cobra.Command, args []string) {
			var err error
			if len(args) == 0 {
				err = showPeers()
			} else if len(args) == 1 {
				err = showPeer(args[0])
			} else {
				args = append(args[1:], args[0])
				peerCmdImpl.SetArgs(args)
				err = peerCmdImpl.Execute()
			}
			if err != nil {
				exitWithError(err)
			}
		},
	}
	return peerCmd
}
