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

// Package notify implements a broadcast-once-then-replace signal,
// the same "close a channel to wake every waiter" idiom context.Context
// uses for Done(). Stages use it to tell composed senders/receivers that
// an item or some free capacity may now be available, without the
// receiver busy-polling.
package notify

import "sync"

// Signal is a level-less broadcast: Broadcast wakes every goroutine
// currently blocked on Wait(), and every Wait() called afterward returns
// a fresh channel that will be woken by the next Broadcast.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// New returns a ready-to-use Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Wait returns the channel to select on. It is closed by the next call to
// Broadcast.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Broadcast wakes all current waiters and prepares the next generation.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}
