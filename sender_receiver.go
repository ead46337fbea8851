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

import "context"

// Sender is the producer-facing handle returned by topology.Build. Send
// suspends, drops, or overflows per the policy of whichever stage the
// event is currently being offered to, exactly as OverflowJunction
// specifies.
type Sender[T Event] interface {
	Send(ctx context.Context, event T) (Outcome, error)
	// Close marks the ingress closed. Already-enqueued events still
	// drain through Receiver.Recv; disk files persist for next open.
	Close()
}

// Receiver is the consumer-facing handle returned by topology.Build.
type Receiver[T Event] interface {
	// Recv returns the next event in topology order, or ok=false once
	// the Sender has been closed and every stage has drained. err is
	// non-nil only when ctx is canceled while waiting.
	Recv(ctx context.Context) (event T, ok bool, err error)
}
