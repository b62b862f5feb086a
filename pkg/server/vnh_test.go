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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVNHPoolAssign(t *testing.T) {
	pool, err := NewVNHPool("172.16.0.0/24")
	require.NoError(t, err)

	first, err := pool.Assign("140.0.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.1", first.VNH)
	assert.Equal(t, "140.0.0.0/16", first.Prefix)
	assert.NotEmpty(t, first.ID)

	second, err := pool.Assign("150.0.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.2", second.VNH)
	assert.NotEqual(t, first.ID, second.ID)

	// Re-assigning an already known prefix returns the same record.
	again, err := pool.Assign("140.0.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 2, pool.Len())
}

func TestVNHPoolLookup(t *testing.T) {
	pool, err := NewVNHPool("172.16.0.0/24")
	require.NoError(t, err)

	_, ok := pool.Lookup("140.0.0.0/16")
	assert.False(t, ok)

	fi, err := pool.Assign("140.0.0.0/16")
	require.NoError(t, err)

	got, ok := pool.Lookup("140.0.0.0/16")
	require.True(t, ok)
	assert.Equal(t, fi, got)
}

func TestVNHPoolExhaustion(t *testing.T) {
	pool, err := NewVNHPool("172.16.0.0/30")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := pool.Assign(fmt.Sprintf("10.%d.0.0/24", i))
		require.NoError(t, err)
	}
	_, err = pool.Assign("10.3.0.0/24")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestVNHPoolInvalidRange(t *testing.T) {
	_, err := NewVNHPool("not-a-cidr")
	assert.Error(t, err)

	_, err = NewVNHPool("2001:db8::/64")
	assert.Error(t, err)
}

func TestVNHPoolSnapshot(t *testing.T) {
	pool, err := NewVNHPool("172.16.0.0/24")
	require.NoError(t, err)
	_, err = pool.Assign("140.0.0.0/16")
	require.NoError(t, err)

	snap := pool.Snapshot()
	require.Len(t, snap, 1)

	// The snapshot is detached from the pool.
	delete(snap, "140.0.0.0/16")
	assert.Equal(t, 1, pool.Len())
}

func TestMACStore(t *testing.T) {
	macs := NewMACStore()
	_, ok := macs.MAC("172.16.0.1")
	assert.False(t, ok)

	macs.Set("172.16.0.1", "08:00:27:89:3b:9f")
	got, ok := macs.MAC("172.16.0.1")
	require.True(t, ok)
	assert.Equal(t, "08:00:27:89:3b:9f", got)
	assert.Equal(t, 1, macs.Len())

	snap := macs.Snapshot()
	assert.Equal(t, map[string]string{"172.16.0.1": "08:00:27:89:3b:9f"}, snap)
}
