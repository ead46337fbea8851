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

import "github.com/elastic/elastic-agent-libs/monitoring"

// Observer reports stage-level counters to whatever metrics backend the
// host process uses. This mirrors queue.Observer from publisher/queue
// (diskQueue.observer, queue.NewQueueObserver): the buffer core only ever
// calls a narrow interface, and a concrete implementation bridges it into
// a monitoring.Registry.
type Observer interface {
	// MaxBytes records the configured byte watermark, 0 if the stage is
	// event-counted rather than byte-counted.
	MaxBytes(n int)
	// Restore reports the event/byte counts recovered from disk at open,
	// before any new activity.
	Restore(events, bytes int)
	// EventsAdded reports n events / bytes accepted by Push.
	EventsAdded(events, bytes int)
	// EventsRemoved reports n events / bytes released by Ack.
	EventsRemoved(events, bytes int)
	// Dropped increments the counter for the given drop reason by one.
	Dropped(reason DropReason)
	// Warning increments a non-fatal warning counter (transient disk
	// write failure, recoverable corruption, ...).
	Warning()
}

// NewQueueObserver returns an Observer that publishes its counters under
// reg. If reg is nil, a no-op Observer is returned, following
// queue.NewQueueObserver(nil)'s use in diskQueue.NewQueue as a safe
// default when the caller doesn't care about metrics.
func NewQueueObserver(reg *monitoring.Registry) Observer {
	if reg == nil {
		return noopObserver{}
	}
	return &monitoringObserver{
		maxEvents:       monitoring.NewInt(reg, "max_events"),
		maxBytes:        monitoring.NewInt(reg, "max_bytes"),
		events:          monitoring.NewInt(reg, "events"),
		bytes:           monitoring.NewInt(reg, "bytes"),
		eventsAdded:     monitoring.NewUint(reg, "added.events"),
		bytesAdded:      monitoring.NewUint(reg, "added.bytes"),
		eventsRemoved:   monitoring.NewUint(reg, "consumed.events"),
		bytesRemoved:    monitoring.NewUint(reg, "consumed.bytes"),
		dropsPolicy:     monitoring.NewUint(reg, "dropped.policy"),
		dropsCorruption: monitoring.NewUint(reg, "dropped.corruption"),
		warnings:        monitoring.NewUint(reg, "warnings"),
	}
}

type monitoringObserver struct {
	maxEvents, maxBytes *monitoring.Int
	events, bytes       *monitoring.Int
	eventsAdded         *monitoring.Uint
	bytesAdded          *monitoring.Uint
	eventsRemoved       *monitoring.Uint
	bytesRemoved        *monitoring.Uint
	dropsPolicy         *monitoring.Uint
	dropsCorruption     *monitoring.Uint
	warnings            *monitoring.Uint
}

func (o *monitoringObserver) MaxBytes(n int) {
	o.maxBytes.Set(int64(n))
}

func (o *monitoringObserver) Restore(events, bytes int) {
	o.events.Set(int64(events))
	o.bytes.Set(int64(bytes))
}

func (o *monitoringObserver) EventsAdded(events, bytes int) {
	o.events.Add(int64(events))
	o.bytes.Add(int64(bytes))
	o.eventsAdded.Add(uint64(events))
	o.bytesAdded.Add(uint64(bytes))
}

func (o *monitoringObserver) EventsRemoved(events, bytes int) {
	o.events.Sub(int64(events))
	o.bytes.Sub(int64(bytes))
	o.eventsRemoved.Add(uint64(events))
	o.bytesRemoved.Add(uint64(bytes))
}

func (o *monitoringObserver) Dropped(reason DropReason) {
	switch reason {
	case DropReasonCorruption:
		o.dropsCorruption.Add(1)
	default:
		o.dropsPolicy.Add(1)
	}
}

func (o *monitoringObserver) Warning() {
	o.warnings.Add(1)
}

type noopObserver struct{}

func (noopObserver) MaxBytes(int)             {}
func (noopObserver) Restore(int, int)         {}
func (noopObserver) EventsAdded(int, int)     {}
func (noopObserver) EventsRemoved(int, int)   {}
func (noopObserver) Dropped(DropReason)       {}
func (noopObserver) Warning()                 {}
