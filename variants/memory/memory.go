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

// Package memory implements the Memory stage variant: a bounded, in-process
// FIFO of events that does not survive process restart. It is the
// simplest Stage, and the one every OverflowJunction chain typically
// starts or ends with.
//
// This departs from memqueue, which is itself a small actor (a goroutine
// running internal_api.run, fed by channels, producing a batch-oriented
// consumer API) that exists to own the suspend/wake logic for Send and
// Get directly against channels. Here, suspension is the composition
// layer's job (package topology waits on ItemNotify/SpaceNotify), so the
// stage itself only needs to be a correct, cheaply-lockable bounded
// buffer -- a mutex-guarded FIFO slice is simpler and just as correct.
package memory

import (
	"sync"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/internal/notify"
)

// Config configures a Stage.
type Config struct {
	// MaxEvents is the maximum number of enqueued, not yet popped events.
	// A popped event frees its slot immediately, before it is acked. Must
	// be greater than zero.
	MaxEvents int
	// Observer receives the stage's metrics. If nil, a no-op Observer is
	// used.
	Observer buffer.Observer
}

// Stage is the Memory buffer.Stage[T] implementation.
type Stage[T buffer.Event] struct {
	maxEvents int
	observer  buffer.Observer

	mu       sync.Mutex
	events   []T // queued contents, oldest first; popped events leave this slice immediately
	inFlight int // popped, not yet acked -- tracked only so Ack(n) can clamp n

	itemNotify  *notify.Signal
	spaceNotify *notify.Signal

	closed bool
}

// New constructs a Memory stage. cfg.MaxEvents must be > 0.
func New[T buffer.Event](cfg Config) (*Stage[T], error) {
	if cfg.MaxEvents <= 0 {
		return nil, buffer.ErrInvalidMaxEvents
	}
	obs := cfg.Observer
	if obs == nil {
		obs = buffer.NewQueueObserver(nil)
	}
	obs.MaxBytes(0)
	return &Stage[T]{
		maxEvents:   cfg.MaxEvents,
		observer:    obs,
		events:      make([]T, 0, cfg.MaxEvents),
		itemNotify:  notify.New(),
		spaceNotify: notify.New(),
	}, nil
}

func (s *Stage[T]) Push(event T) (buffer.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return buffer.Full, buffer.ErrClosed
	}
	if len(s.events) >= s.maxEvents {
		s.mu.Unlock()
		return buffer.Full, nil
	}
	s.events = append(s.events, event)
	s.mu.Unlock()

	s.observer.EventsAdded(1, 0)
	s.itemNotify.Broadcast()
	return buffer.Accepted, nil
}

func (s *Stage[T]) TryPop() (T, bool) {
	s.mu.Lock()
	var zero T
	if len(s.events) == 0 {
		s.mu.Unlock()
		return zero, false
	}
	event := s.events[0]
	s.events[0] = zero
	s.events = s.events[1:]
	s.inFlight++
	s.mu.Unlock()

	s.spaceNotify.Broadcast()
	return event, true
}

func (s *Stage[T]) Ack(n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	if n > s.inFlight {
		n = s.inFlight
	}
	s.inFlight -= n
	s.mu.Unlock()

	s.observer.EventsRemoved(n, 0)
	s.spaceNotify.Broadcast()
	return nil
}

func (s *Stage[T]) LenEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// LenBytes always reports 0: the Memory stage is event-counted, not
// byte-counted.
func (s *Stage[T]) LenBytes() int { return 0 }

func (s *Stage[T]) ItemNotify() <-chan struct{}  { return s.itemNotify.Wait() }
func (s *Stage[T]) SpaceNotify() <-chan struct{} { return s.spaceNotify.Wait() }

func (s *Stage[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ buffer.Stage[byteSizer] = (*Stage[byteSizer])(nil)

type byteSizer struct{}

func (byteSizer) ByteSize() int { return 0 }
