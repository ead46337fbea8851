// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package buffertest provides a reusable multi-producer/multi-consumer
// property test harness for a built (Sender, Receiver, Acker) triple,
// adapted from publisher/queue/queuetest's producer/consumer worker-pair
// table and internal/testutil's seeded-PRNG helper. Where queuetest
// drives a queue.Queue with beat.Event batches, this harness drives the
// generic buffer.Sender[T]/Receiver[T]/Acker directly with int-keyed
// events, since the buffer package has no concept of event fields.
package buffertest

import (
	"context"
	"flag"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obsbuffer/buffer"
)

var seedFlag = flag.Int64("buffertest.seed", 0, "randomization seed")

// SeedPRNG returns a *rand.Rand seeded deterministically from -buffertest.seed,
// or from the current time if unset, logging the seed so a failing run can
// be reproduced.
func SeedPRNG(t *testing.T) *rand.Rand {
	seed := *seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t.Logf("reproduce test with -args -buffertest.seed %v", seed)
	return rand.New(rand.NewSource(seed))
}

// IntEvent is the minimal Event used by this harness's test cases.
type IntEvent int

func (IntEvent) ByteSize() int { return 8 }

// IntCodec encodes IntEvent as its 8-byte big-endian value, for exercising
// disk-backed stages from the same harness used for memory stages.
type IntCodec struct{}

func (IntCodec) Encode(e IntEvent) ([]byte, error) {
	b := make([]byte, 8)
	v := uint64(e)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b, nil
}

func (IntCodec) Decode(b []byte) (IntEvent, error) {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return IntEvent(v), nil
}

// Built bundles the triple topology.Build produces, so this package does
// not need to import package topology (and risk a cycle with its tests).
type Built struct {
	Sender   buffer.Sender[IntEvent]
	Receiver buffer.Receiver[IntEvent]
	Acker    *buffer.Acker
}

// Factory constructs a fresh, independent topology for one test case.
type Factory func(t *testing.T) Built

// TestSingleProducerConsumer exercises one producer sending `events`
// sequential IntEvents against one consumer receiving and acking them,
// both with and without per-event acking, mirroring
// queuetest.TestSingleProducerConsumer's batch-completeness checks.
func TestSingleProducerConsumer(t *testing.T, events int, factory Factory) {
	t.Run("producer/consumer, ack every event", func(t *testing.T) {
		runProducersConsumer(t, events, 1, factory, true)
	})
	t.Run("producer/consumer, ack at the end", func(t *testing.T) {
		runProducersConsumer(t, events, 1, factory, false)
	})
}

// TestMultiProducerConsumer exercises `producers` concurrent producers
// against a single consumer, mirroring
// queuetest.TestMultiProducerConsumer's multiple()-composed producer set.
func TestMultiProducerConsumer(t *testing.T, events, producers int, factory Factory) {
	t.Run("producers/consumer, ack every event", func(t *testing.T) {
		runProducersConsumer(t, events, producers, factory, true)
	})
}

func runProducersConsumer(t *testing.T, events, producers int, factory Factory, ackEvery bool) {
	built := factory(t)
	defer built.Acker.Close()

	ctx := context.Background()
	total := events * producers

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < events; i++ {
				outcome, err := built.Sender.Send(ctx, IntEvent(base+i))
				require.NoError(t, err)
				require.Equal(t, buffer.Accepted, outcome)
			}
		}(p * events)
	}

	seen := make(map[IntEvent]bool, total)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		pending := 0
		for len(seen) < total {
			event, ok, err := built.Receiver.Recv(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			mu.Lock()
			seen[event] = true
			mu.Unlock()
			pending++
			if ackEvery {
				require.NoError(t, built.Acker.Ack(1))
				pending = 0
			}
		}
		if !ackEvery && pending > 0 {
			require.NoError(t, built.Acker.Ack(pending))
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not drain all produced events")
	}
	require.Len(t, seen, total)
}
