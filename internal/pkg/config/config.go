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

package config

import (
	"fmt"
	"net"

	"github.com/spf13/viper"
)

type Global struct {
	AS       uint32 `mapstructure:"as" toml:"as" json:"as"`
	RouterID string `mapstructure:"router-id" toml:"router-id" json:"router-id"`
	// VNHRange is the default virtual next hop pool for peers that do
	// not configure their own.
	VNHRange string `mapstructure:"vnh-range" toml:"vnh-range" json:"vnh-range,omitempty"`
}

// Port is one dataplane port of a participant. Announce and withdraw
// commands are addressed to the port IP.
type Port struct {
	ID  int    `mapstructure:"id" toml:"id" json:"id"`
	IP  string `mapstructure:"ip" toml:"ip" json:"ip"`
	MAC string `mapstructure:"mac" toml:"mac" json:"mac,omitempty"`
}

// Peer is one hosted participant: the BGP sessions it accepts routes
// from, the ports it announces to, and its forwarding identities.
type Peer struct {
	ID            string            `mapstructure:"id" toml:"id" json:"id"`
	AS            uint32            `mapstructure:"as" toml:"as" json:"as"`
	InboundPeers  []string          `mapstructure:"inbound-peers" toml:"inbound-peers" json:"inbound-peers"`
	OutboundPorts []Port            `mapstructure:"outbound-ports" toml:"outbound-ports" json:"outbound-ports"`
	VNHRange      string            `mapstructure:"vnh-range" toml:"vnh-range" json:"vnh-range,omitempty"`
	MACBindings   map[string]string `mapstructure:"mac-bindings" toml:"mac-bindings" json:"mac-bindings,omitempty"`
}

// Feed is the Kafka transport carrying decoded update events in and
// session commands out.
type Feed struct {
	Brokers       []string `mapstructure:"brokers" toml:"brokers" json:"brokers"`
	Topic         string   `mapstructure:"topic" toml:"topic" json:"topic"`
	CommandsTopic string   `mapstructure:"commands-topic" toml:"commands-topic" json:"commands-topic"`
	FECTopic      string   `mapstructure:"fec-topic" toml:"fec-topic" json:"fec-topic"`
	Group         string   `mapstructure:"group" toml:"group" json:"group,omitempty"`
	ClientID      string   `mapstructure:"client-id" toml:"client-id" json:"client-id,omitempty"`
}

type API struct {
	Port int `mapstructure:"port" toml:"port" json:"port"`
}

type Config struct {
	Global Global `mapstructure:"global" toml:"global" json:"global"`
	Peers  []Peer `mapstructure:"peers" toml:"peers" json:"peers"`
	Feed   Feed   `mapstructure:"feed" toml:"feed" json:"feed"`
	API    API    `mapstructure:"api" toml:"api" json:"api"`
}

const (
	DEFAULT_UPDATES_TOPIC  = "sdx.updates"
	DEFAULT_COMMANDS_TOPIC = "sdx.commands"
	DEFAULT_FEC_TOPIC      = "sdx.fecs"
	DEFAULT_API_PORT       = 8080
)

// SetDefaultConfigValues fills the fields the file left unset.
func SetDefaultConfigValues(c *Config) error {
	if c.Feed.Topic == "" {
		c.Feed.Topic = DEFAULT_UPDATES_TOPIC
	}
	if c.Feed.CommandsTopic == "" {
		c.Feed.CommandsTopic = DEFAULT_COMMANDS_TOPIC
	}
	if c.Feed.FECTopic == "" {
		c.Feed.FECTopic = DEFAULT_FEC_TOPIC
	}
	if c.Feed.ClientID == "" {
		c.Feed.ClientID = "pctrld"
	}
	if c.Feed.Group == "" {
		c.Feed.Group = fmt.Sprintf("pctrl-%d", c.Global.AS)
	}
	if c.API.Port == 0 {
		c.API.Port = DEFAULT_API_PORT
	}
	for i := range c.Peers {
		p := &c.Peers[i]
		if p.VNHRange == "" {
			p.VNHRange = c.Global.VNHRange
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("as%d", p.AS)
		}
	}
	return nil
}

func validate(c *Config) error {
	if c.Global.AS == 0 {
		return fmt.Errorf("global as number is not configured")
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("no peers configured")
	}
	seen := make(map[uint32]bool)
	for _, p := range c.Peers {
		if p.AS == 0 {
			return fmt.Errorf("peer %q has no as number", p.ID)
		}
		if seen[p.AS] {
			return fmt.Errorf("duplicate peer as number %d", p.AS)
		}
		seen[p.AS] = true
		if len(p.InboundPeers) == 0 {
			return fmt.Errorf("peer %q has no inbound peers", p.ID)
		}
		for _, addr := range p.InboundPeers {
			if net.ParseIP(addr) == nil {
				return fmt.Errorf("peer %q: invalid inbound peer address %q", p.ID, addr)
			}
		}
		for _, port := range p.OutboundPorts {
			if net.ParseIP(port.IP) == nil {
				return fmt.Errorf("peer %q: invalid port address %q", p.ID, port.IP)
			}
		}
		if p.VNHRange != "" {
			if _, _, err := net.ParseCIDR(p.VNHRange); err != nil {
				return fmt.Errorf("peer %q: invalid vnh range %q: %s", p.ID, p.VNHRange, err)
			}
		}
	}
	return nil
}

// ReadConfigFile parses and validates a config file.
func ReadConfigFile(path, format string) (*Config, error) {
	c := &Config{}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(format)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}
	if err := SetDefaultConfigValues(c); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}
