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
	"encoding/json"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/config"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/metrics"
)

// Feed is the Kafka bus between the exchange's route server and the
// participant controllers: it consumes decoded BGP update events and
// publishes the session commands and forwarding class records produced
// in response.
type Feed struct {
	client *kgo.Client
	joined atomic.Bool

	commands string
	fecs     string
}

func NewFeed(c *config.Feed) (*Feed, error) {
	f := &Feed{
		commands: c.CommandsTopic,
		fecs:     c.FECTopic,
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Brokers...),
		kgo.ConsumerGroup(c.Group),
		kgo.ConsumeTopics(c.Topic),
		kgo.ClientID(c.ClientID),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			f.joined.Store(true)
			log.WithFields(log.Fields{"Topic": "Feed"}).Info("Partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			f.joined.Store(false)
			log.WithFields(log.Fields{"Topic": "Feed"}).Info("Partitions revoked")
		}),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	f.client = client
	return f, nil
}

// Run delivers each fetched record to handle and commits offsets once
// the batch is handled. By the time handle returns the record's input
// stage mutations are applied; everything downstream of that point is
// asynchronous and rebuilt from the feed after a restart anyway.
func (f *Feed) Run(ctx context.Context, handle func(data []byte)) {
	for {
		fetches := f.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		for _, e := range fetches.Errors() {
			log.WithFields(log.Fields{
				"Topic": "Feed",
				"Key":   fmt.Sprintf("%s/%d", e.Topic, e.Partition),
			}).Errorf("Fetch failed: %s", e.Err)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			handle(r.Value)
			f.client.MarkCommitRecords(r)
		})
		if err := f.client.CommitMarkedOffsets(ctx); err != nil && ctx.Err() == nil {
			log.WithFields(log.Fields{"Topic": "Feed"}).Errorf("Offset commit failed: %s", err)
		}
	}
}

// SendActions publishes one rendered command per action, keyed by
// prefix so per prefix command order survives partitioning.
func (f *Feed) SendActions(ctx context.Context, actions []*Action) {
	for _, a := range actions {
		rec := &kgo.Record{
			Topic: f.commands,
			Key:   []byte(a.Prefix),
			Value: []byte(a.Command()),
		}
		f.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
			if err != nil {
				metrics.CommandSendErrorsTotal.Inc()
				log.WithFields(log.Fields{"Topic": "Feed"}).Errorf("Failed to publish command: %s", err)
			}
		})
	}
}

// SendFECs publishes newly needed forwarding class records, keyed by
// virtual next hop.
func (f *Feed) SendFECs(ctx context.Context, fecs []*ForwardingInfo) {
	for _, fi := range fecs {
		data, err := json.Marshal(fi)
		if err != nil {
			log.WithFields(log.Fields{"Topic": "Feed"}).Errorf("Failed to encode forwarding record: %s", err)
			continue
		}
		rec := &kgo.Record{
			Topic: f.fecs,
			Key:   []byte(fi.VNH),
			Value: data,
		}
		f.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
			if err != nil {
				metrics.CommandSendErrorsTotal.Inc()
				log.WithFields(log.Fields{"Topic": "Feed"}).Errorf("Failed to publish forwarding record: %s", err)
			}
		})
	}
}

// IsJoined reports whether the consumer group has assigned partitions,
// the readiness gate for serving.
func (f *Feed) IsJoined() bool {
	return f.joined.Load()
}

func (f *Feed) Close() {
	f.client.Close()
}
