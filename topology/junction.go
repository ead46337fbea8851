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

// buildSender composes stages right to left: the last stage is wrapped
// by a terminalSender (no downstream to overflow into); each preceding
// stage is wrapped by a junctionSender around the already-composed
// Sender for everything after it. This is genuine recursion, not a
// graph: Send on stage i either returns directly, or (for
// WhenFullOverflow) calls Send on the single Sender composed from i+1..
func buildSender[T buffer.Event](stages []buffer.Stage[T], policies []buffer.WhenFull, observers []buffer.Observer) *chainSender[T] {
	closed := &closeSignal{ch: make(chan struct{})}

	n := len(stages)
	var next senderLink[T] = &terminalSender[T]{
		stage: stages[n-1], policy: policies[n-1], observer: observers[n-1], closed: closed,
	}
	for i := n - 2; i >= 0; i-- {
		next = &junctionSender[T]{
			stage: stages[i], policy: policies[i], observer: observers[i], next: next, closed: closed,
		}
	}
	return &chainSender[T]{link: next, closed: closed}
}

// senderLink is the recursive unit wrapped by each stage.
type senderLink[T buffer.Event] interface {
	send(ctx context.Context, event T) (buffer.Outcome, error)
}

// chainSender is the buffer.Sender[T] returned to the caller: a thin
// wrapper that also owns the shared closed signal the Receiver watches
// for end-of-stream.
type chainSender[T buffer.Event] struct {
	link   senderLink[T]
	closed *closeSignal
}

func (c *chainSender[T]) Send(ctx context.Context, event T) (buffer.Outcome, error) {
	return c.link.send(ctx, event)
}

func (c *chainSender[T]) Close() {
	c.closed.broadcast()
}

type closeSignal struct {
	once sync.Once
	ch   chan struct{}
}

func (c *closeSignal) broadcast() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeSignal) Done() <-chan struct{} { return c.ch }

func (c *closeSignal) isClosed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// terminalSender applies its stage's own policy directly: there is
// nothing downstream to overflow into, so a terminal WhenFullOverflow is
// degraded to WhenFullBlock by the builder before this is constructed.
type terminalSender[T buffer.Event] struct {
	stage    buffer.Stage[T]
	policy   buffer.WhenFull
	observer buffer.Observer
	closed   *closeSignal
}

func (t *terminalSender[T]) send(ctx context.Context, event T) (buffer.Outcome, error) {
	for {
		// Capture SpaceNotify before Push, not after it reports Full: an
		// Ack/Pop racing with Push broadcasts on the channel captured
		// here, so the wait below can never miss it. Capturing only after
		// Push returns Full leaves a window where that broadcast lands on
		// the channel about to be replaced, and the wait wakes on the
		// next generation instead -- potentially never, if no further
		// Ack/Pop follows.
		spaceCh := t.stage.SpaceNotify()

		outcome, err := t.stage.Push(event)
		if err != nil {
			return buffer.Full, err
		}
		if outcome == buffer.Accepted {
			return buffer.Accepted, nil
		}

		switch t.policy {
		case buffer.WhenFullDropNewest:
			t.observer.Dropped(buffer.DropReasonPolicy)
			return buffer.Dropped, nil
		default: // WhenFullBlock
			select {
			case <-ctx.Done():
				return buffer.Full, ctx.Err()
			case <-spaceCh:
			}
		}
	}
}

// junctionSender implements OverflowJunction: behavior when the upstream
// stage reports Full is dictated entirely by the upstream's own policy.
type junctionSender[T buffer.Event] struct {
	stage    buffer.Stage[T]
	policy   buffer.WhenFull
	observer buffer.Observer
	next     senderLink[T]
	closed   *closeSignal
}

func (j *junctionSender[T]) send(ctx context.Context, event T) (buffer.Outcome, error) {
	for {
		// See terminalSender.send: capture before Push so a racing
		// Ack/Pop's broadcast is never missed.
		spaceCh := j.stage.SpaceNotify()

		outcome, err := j.stage.Push(event)
		if err != nil {
			return buffer.Full, err
		}
		if outcome == buffer.Accepted {
			return buffer.Accepted, nil
		}

		switch j.policy {
		case buffer.WhenFullDropNewest:
			j.observer.Dropped(buffer.DropReasonPolicy)
			return buffer.Dropped, nil
		case buffer.WhenFullOverflow:
			return j.next.send(ctx, event)
		default: // WhenFullBlock
			select {
			case <-ctx.Done():
				return buffer.Full, ctx.Err()
			case <-spaceCh:
			}
		}
	}
}

var _ buffer.Sender[byteSizer] = (*chainSender[byteSizer])(nil)

type byteSizer struct{}

func (byteSizer) ByteSize() int { return 0 }
