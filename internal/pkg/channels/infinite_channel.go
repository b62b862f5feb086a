// Copyright (C) 2017 The sdx-parallel Authors.
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

package channels

import (
	"github.com/eapache/channels"
)

// InfiniteChannel is an unbounded FIFO between the update translator and
// the decision workers. Pushes never block, so a slow worker can never
// stall the feed.
type InfiniteChannel struct {
	channels.InfiniteChannel
}

func NewInfiniteChannel() *InfiniteChannel {
	return &InfiniteChannel{
		InfiniteChannel: *channels.NewInfiniteChannel(),
	}
}

func (ch *InfiniteChannel) Push(m interface{}) {
	ch.In() <- m
}

// Clean closes the channel and drains anything still buffered.
func (ch *InfiniteChannel) Clean() {
	ch.Close()
	for range ch.Out() {
	}
}
