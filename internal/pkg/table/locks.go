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

import "sync"

// GlobalLockKey is the reserved lock name for operations that are not
// scoped to a single prefix, such as clearing a whole RIB.
const GlobalLockKey = "global"

// LockRegistry hands out one mutex per lock name, created on first use.
// A section locked under a prefix name also holds the registry's global
// lock shared, so a section locked under GlobalLockKey excludes every
// prefix section. Sections must not nest; helpers that run under an
// already held lock take the *Locked naming convention instead of
// re-acquiring.
type LockRegistry struct {
	global sync.RWMutex
	locks  sync.Map // lock name -> *sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{}
}

func (r *LockRegistry) lockFor(name string) *sync.Mutex {
	if l, ok := r.locks.Load(name); ok {
		return l.(*sync.Mutex)
	}
	l, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (r *LockRegistry) Lock(name string) {
	if name == GlobalLockKey {
		r.global.Lock()
		return
	}
	r.global.RLock()
	r.lockFor(name).Lock()
}

func (r *LockRegistry) Unlock(name string) {
	if name == GlobalLockKey {
		r.global.Unlock()
		return
	}
	r.lockFor(name).Unlock()
	r.global.RUnlock()
}

// Len returns the number of locks created so far.
func (r *LockRegistry) Len() int {
	n := 0
	r.locks.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
