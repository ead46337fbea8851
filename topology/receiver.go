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

package topology

import (
	"context"
	"sync"

	"github.com/obsbuffer/buffer"
)

// receiver implements buffer.Receiver[T] with a flat, prioritized scan
// over every stage rather than a recursive wrap: draining always prefers
// the earliest stage with an available event, and there is no need to
// recurse since every stage is equally reachable from a single Recv call
// -- recursion only earns its keep on the Send side, where
// OverflowJunction must honor each stage's own policy independently.
type receiver[T buffer.Event] struct {
	stages []buffer.Stage[T]
	acker  *buffer.Acker
	closed *closeSignal
}

func newReceiver[T buffer.Event](stages []buffer.Stage[T], acker *buffer.Acker, closed *closeSignal) *receiver[T] {
	return &receiver[T]{stages: stages, acker: acker, closed: closed}
}

func (r *receiver[T]) Recv(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		// Capture every stage's notify channel before checking for an
		// available event, not after: a Push racing with the scan below
		// broadcasts on the channel captured here, so the wait at the
		// bottom of the loop can never miss it. Capturing only after a
		// failed scan would leave a window where a Push's broadcast lands
		// on the very channel about to be replaced, and the wait ends up
		// listening on the next generation instead.
		chans := r.itemNotifies()

		for i, stage := range r.stages {
			if event, ok := stage.TryPop(); ok {
				r.acker.RecordPop(i)
				return event, true, nil
			}
		}

		if r.closed.isClosed() && r.allEmpty() {
			return zero, false, nil
		}

		stop := make(chan struct{})
		woken := waitAny(stop, chans, r.closed.Done(), ctx.Done())
		select {
		case <-woken:
		case <-ctx.Done():
			close(stop)
			return zero, false, ctx.Err()
		}
		close(stop)
	}
}

func (r *receiver[T]) allEmpty() bool {
	for _, stage := range r.stages {
		if stage.LenEvents() > 0 {
			return false
		}
	}
	return true
}

func (r *receiver[T]) itemNotifies() []<-chan struct{} {
	chans := make([]<-chan struct{}, len(r.stages))
	for i, stage := range r.stages {
		chans[i] = stage.ItemNotify()
	}
	return chans
}

var _ buffer.Receiver[byteSizer] = (*receiver[byteSizer])(nil)

// waitAny fans out a goroutine per input channel (plus any extras) and
// returns a channel that fires as soon as any of them does. Every
// goroutine exits once stop is closed, so callers must always close stop
// -- on the winning branch as well as on cancellation -- to avoid leaking
// one goroutine per wait.
func waitAny(stop <-chan struct{}, chans []<-chan struct{}, extras ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	all := append(append([]<-chan struct{}{}, chans...), extras...)

	var once sync.Once
	fire := func() {
		once.Do(func() { close(out) })
	}
	for _, ch := range all {
		ch := ch
		go func() {
			select {
			case <-ch:
				fire()
			case <-stop:
			}
		}()
	}
	return out
}
