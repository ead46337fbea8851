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

package buffer

// Stage is the contract every stage variant (memory, disk_v1, disk)
// implements. Push and TryPop are non-blocking primitives: Push
// returns Full immediately rather than suspending, and TryPop returns
// false immediately rather than suspending. Suspension for producers and
// consumers is layered on top of these primitives by the composition in
// package topology (an OverflowJunction waits on ItemNotify/SpaceNotify
// rather than busy polling), mirroring how memqueue.openState.publish
// suspends via select on channels rather than spinning.
type Stage[T Event] interface {
	// Push attempts to enqueue event, returning Full without blocking if
	// the stage is at its watermark. A disk stage's Push may still take
	// observable time to return (it performs the write), but it never
	// waits for capacity to free up.
	Push(event T) (Outcome, error)

	// TryPop returns the oldest enqueued event and advances it to
	// in-flight, or (zero, false) if nothing is currently enqueued.
	TryPop() (T, bool)

	// Ack releases the n oldest in-flight events, in pop order. For
	// memory stages this is pure accounting; for disk stages it advances
	// the acknowledged-through cursor and reclaims space.
	Ack(n int) error

	// LenEvents returns the number of events currently enqueued
	// (excludes in-flight, popped-but-unacked events).
	LenEvents() int

	// LenBytes returns the encoded byte size of unacknowledged on-disk
	// payload (enqueued + in-flight). Memory stages report 0.
	LenBytes() int

	// ItemNotify returns a channel that is signaled (closed once, then
	// replaced) whenever an event may have become available to pop.
	ItemNotify() <-chan struct{}

	// SpaceNotify returns a channel that is signaled whenever capacity
	// may have increased, e.g. after an Ack.
	SpaceNotify() <-chan struct{}

	// Close releases the stage's resources. Disk stage files persist on
	// disk for the next open; in-memory queue contents do not.
	Close() error
}
