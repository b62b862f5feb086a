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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockRegistryLazyCreation(t *testing.T) {
	r := NewLockRegistry()
	assert.Equal(t, 0, r.Len())

	r.Lock("10.0.0.0/24")
	r.Unlock("10.0.0.0/24")
	assert.Equal(t, 1, r.Len())

	// the same name reuses its lock
	r.Lock("10.0.0.0/24")
	r.Unlock("10.0.0.0/24")
	assert.Equal(t, 1, r.Len())

	// the global key never enters the map
	r.Lock(GlobalLockKey)
	r.Unlock(GlobalLockKey)
	assert.Equal(t, 1, r.Len())
}

func TestLockRegistryMutualExclusion(t *testing.T) {
	r := NewLockRegistry()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Lock("10.0.0.0/24")
				counter++
				r.Unlock("10.0.0.0/24")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3200, counter)
}

func TestLockRegistryConcurrentInsertion(t *testing.T) {
	r := NewLockRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("10.0.%d.0/24", i)
			r.Lock(name)
			r.Unlock(name)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, r.Len())
}

func TestLockRegistryGlobalExcludesPrefixes(t *testing.T) {
	r := NewLockRegistry()

	r.Lock("10.0.0.0/24")

	acquired := make(chan struct{})
	go func() {
		r.Lock(GlobalLockKey)
		close(acquired)
		r.Unlock(GlobalLockKey)
	}()

	select {
	case <-acquired:
		t.Fatal("global lock acquired while a prefix section was held")
	case <-time.After(50 * time.Millisecond):
	}

	r.Unlock("10.0.0.0/24")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("global lock not acquired after the prefix section ended")
	}
}
