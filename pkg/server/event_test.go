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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/table"
)

func TestParseEventAnnounceMessageEnvelope(t *testing.T) {
	data := []byte(`{
		"neighbor": {
			"ip": "172.0.0.1",
			"message": {
				"update": {
					"attribute": {
						"origin": "igp",
						"as-path": [100, 200],
						"med": 50,
						"community": ["100:200"]
					},
					"announce": {
						"ipv4 unicast": {
							"172.0.0.1": {
								"150.0.0.0/16": {},
								"140.0.0.0/16": {}
							}
						}
					}
				}
			}
		}
	}`)

	ev, err := ParseEvent(data)
	require.NoError(t, err)
	require.NotNil(t, ev.Neighbor)
	assert.Equal(t, "172.0.0.1", ev.Neighbor.IP)
	assert.False(t, ev.Neighbor.Down())

	up := ev.Neighbor.update()
	require.NotNil(t, up)
	require.NotNil(t, up.Attribute)
	assert.Equal(t, "igp", up.Attribute.Origin)
	assert.Equal(t, table.ASPath{{100, 200}}, up.Attribute.ASPath)
	require.NotNil(t, up.Attribute.Med)
	assert.Equal(t, uint32(50), *up.Attribute.Med)
	assert.Equal(t, []table.Community{{100, 200}}, up.Attribute.Community)

	require.NotNil(t, up.Announce)
	assert.Equal(t, []string{"172.0.0.1"}, up.Announce.NextHops())
	assert.Equal(t, []string{"140.0.0.0/16", "150.0.0.0/16"}, up.Announce.Routes["172.0.0.1"])
}

func TestParseEventAnnounceBareForm(t *testing.T) {
	data := []byte(`{
		"neighbor": {
			"ip": "172.0.0.1",
			"update": {
				"attribute": {"origin": "egp", "as-path": [[300]]},
				"announce": {
					"172.0.0.1": ["150.0.0.0/16", "140.0.0.0/16"]
				}
			}
		}
	}`)

	ev, err := ParseEvent(data)
	require.NoError(t, err)

	up := ev.Neighbor.update()
	require.NotNil(t, up)
	assert.Equal(t, table.ASPath{{300}}, up.Attribute.ASPath)
	assert.Equal(t, []string{"140.0.0.0/16", "150.0.0.0/16"}, up.Announce.Routes["172.0.0.1"])
}

func TestParseEventWithdrawForms(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
	}{
		{"list", `{"neighbor": {"ip": "172.0.0.1", "update": {"withdraw": ["150.0.0.0/16", "140.0.0.0/16"]}}}`},
		{"object", `{"neighbor": {"ip": "172.0.0.1", "update": {"withdraw": {"150.0.0.0/16": {}, "140.0.0.0/16": {}}}}}`},
		{"family", `{"neighbor": {"ip": "172.0.0.1", "update": {"withdraw": {"ipv4 unicast": {"150.0.0.0/16": {}, "140.0.0.0/16": {}}}}}}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.data))
			require.NoError(t, err)

			up := ev.Neighbor.update()
			require.NotNil(t, up)
			require.NotNil(t, up.Withdraw)
			assert.Equal(t, []string{"140.0.0.0/16", "150.0.0.0/16"}, up.Withdraw.Prefixes)
		})
	}
}

func TestParseEventStateDown(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"neighbor": {"ip": "172.0.0.1", "state": "down"}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Neighbor)
	assert.True(t, ev.Neighbor.Down())
	assert.Nil(t, ev.Neighbor.update())
}

func TestParseEventNotification(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"notification": "shutdown"}`))
	require.NoError(t, err)
	assert.True(t, ev.Shutdown())

	ev, err = ParseEvent([]byte(`{"notification": "restart"}`))
	require.NoError(t, err)
	assert.False(t, ev.Shutdown())
}

func TestParseEventInvalid(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
	}{
		{"empty", `{}`},
		{"no address", `{"neighbor": {"state": "down"}}`},
		{"truncated", `{"neighbor":`},
		{"bad announce", `{"neighbor": {"ip": "172.0.0.1", "update": {"announce": 42}}}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestAnnounceSetNextHopsSorted(t *testing.T) {
	a := &AnnounceSet{Routes: map[string][]string{
		"172.0.0.9": {"140.0.0.0/16"},
		"172.0.0.1": {"150.0.0.0/16"},
	}}
	assert.Equal(t, []string{"172.0.0.1", "172.0.0.9"}, a.NextHops())
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "announce", CHANGE_ANNOUNCE.String())
	assert.Equal(t, "withdraw", CHANGE_WITHDRAW.String())
	assert.Equal(t, "unknown(9)", ChangeKind(9).String())
}
