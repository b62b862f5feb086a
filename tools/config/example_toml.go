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
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/config"
)

func main() {
	b := config.Config{
		Global: config.Global{
			AS:       65000,
			RouterID: "10.0.255.254",
			VNHRange: "172.16.0.0/16",
		},
		Peers: []config.Peer{
			{
				ID:           "as100",
				AS:           100,
				InboundPeers: []string{"172.0.0.1", "172.0.0.2"},
				OutboundPorts: []config.Port{
					{ID: 1, IP: "172.0.0.11", MAC: "08:00:27:89:3b:9f"},
					{ID: 2, IP: "172.0.0.12", MAC: "08:00:27:92:18:1f"},
				},
				VNHRange: "172.16.0.0/24",
				MACBindings: map[string]string{
					"172.16.0.1": "08:00:27:89:3b:9f",
				},
			},
			{
				ID:           "as200",
				AS:           200,
				InboundPeers: []string{"172.0.1.1"},
				OutboundPorts: []config.Port{
					{ID: 3, IP: "172.0.1.11", MAC: "08:00:27:54:56:ea"},
				},
				VNHRange: "172.16.1.0/24",
			},
		},
		Feed: config.Feed{
			Brokers:       []string{"127.0.0.1:9092"},
			Topic:         "sdx.updates",
			CommandsTopic: "sdx.commands",
			FECTopic:      "sdx.fecs",
			Group:         "pctrl-65000",
			ClientID:      "pctrld",
		},
		API: config.API{
			Port: 8080,
		},
	}

	var buffer bytes.Buffer
	encoder := toml.NewEncoder(&buffer)
	err := encoder.Encode(b)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%v\n", buffer.String())
}
