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

import "errors"

// Build-time errors returned by topology.Build. These mirror the variant
// names of the original BufferBuildError enum (lib/vector-buffers/src/config.rs)
// so callers can errors.Is against a stable taxonomy instead of matching
// on message text.
var (
	// ErrRequiresDataDir is returned when a disk stage descriptor is
	// present but no data_dir was supplied to the builder.
	ErrRequiresDataDir = errors.New("buffer: the configured stage requires a data_dir to be specified")

	// ErrInvalidMaxEvents is returned when a memory stage's max_events is
	// zero or otherwise invalid.
	ErrInvalidMaxEvents = errors.New("buffer: max_events must be greater than zero")

	// ErrInvalidMaxSize is returned when a disk stage's max_size is zero
	// or otherwise invalid.
	ErrInvalidMaxSize = errors.New("buffer: max_size must be greater than zero")

	// ErrDuplicateDiskStage is returned when a topology descriptor list
	// contains more than one instance of the same disk variant.
	ErrDuplicateDiskStage = errors.New("buffer: at most one instance of each disk stage variant is allowed per topology")

	// ErrEmptyTopology is returned when the descriptor list is empty.
	ErrEmptyTopology = errors.New("buffer: a topology requires at least one stage")

	// ErrFailedToOpenDisk wraps an underlying I/O error encountered while
	// initializing a disk stage's on-disk files.
	ErrFailedToOpenDisk = errors.New("buffer: failed to open disk stage storage")

	// ErrCorruptOnDiskRecord names the condition of a disk record failing
	// its checksum. The disk stages do not return it: at open they report
	// each lost record through Observer.Warning and
	// Observer.Dropped(DropReasonCorruption), truncate the file at that
	// record, and continue.
	ErrCorruptOnDiskRecord = errors.New("buffer: on-disk record failed its checksum")

	// ErrClosed is returned by a stage's Push once that stage has been
	// closed, and passed through by Sender.Send when it comes from a stage.
	ErrClosed = errors.New("buffer: closed")
)

// DefaultMaxEvents is the max_events applied to a memory stage descriptor
// that omits the field, matching the original serde default.
const DefaultMaxEvents = 500

// TerminalOverflow is not an error: a terminal stage configured with
// WhenFullOverflow silently degrades to WhenFullBlock, since there is
// nothing further to overflow into. TopologyBuilder applies this
// degradation during Build and never returns an error for it; the
// constant documents the behavior for readers of package buffer.
const TerminalOverflowDegradesTo = WhenFullBlock
