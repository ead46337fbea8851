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

// Package topology builds a complete (Sender, Receiver, Acker) from a
// config.TopologyConfig, composing each configured stage with its
// neighbors via an OverflowJunction. Build/BuildWithSettings is adapted
// from publisher/pipeline/module.go's Load/LoadWithSettings split: a
// narrow Build for the common case, and a BuildWithSettings that exposes
// the full Settings object for callers that need the Monitors knobs.
package topology

import (
	"fmt"
	"path/filepath"

	"github.com/elastic/elastic-agent-libs/logp"
	"github.com/elastic/elastic-agent-libs/monitoring"
	"go.elastic.co/apm/v2"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/config"
	"github.com/obsbuffer/buffer/variants/diskv1"
	"github.com/obsbuffer/buffer/variants/diskv2"
	"github.com/obsbuffer/buffer/variants/memory"
)

// Monitors configures visibility for the built topology, the same shape
// as pipeline.Monitors.
type Monitors struct {
	Metrics *monitoring.Registry
	Logger  *logp.Logger
	Tracer  *apm.Tracer
}

// Settings are the build-time inputs beyond the TopologyConfig itself.
type Settings struct {
	// DataDir is the filesystem root for disk stages. Required if the
	// config contains any disk_v1 or disk stage.
	DataDir string
	// BufferID namespaces this topology's files under DataDir. Must be
	// non-empty and safe for use as a filename component.
	BufferID string
	// MaxSegmentSize overrides DiskV2's segment rotation size. Zero uses
	// the variant's default.
	MaxSegmentSize int64
	Monitors       Monitors
}

// Build constructs a topology from cfg with no data directory. Any disk
// stage in cfg will fail the build with ErrRequiresDataDir.
func Build[T buffer.Event](cfg config.TopologyConfig, codec buffer.Codec[T]) (buffer.Sender[T], buffer.Receiver[T], *buffer.Acker, error) {
	return BuildWithSettings(cfg, codec, Settings{})
}

// BuildWithSettings is the same as Build, but exposes the full Settings
// object (data_dir, buffer_id, and observability knobs).
func BuildWithSettings[T buffer.Event](cfg config.TopologyConfig, codec buffer.Codec[T], settings Settings) (buffer.Sender[T], buffer.Receiver[T], *buffer.Acker, error) {
	log := settings.Monitors.Logger
	if log == nil {
		log = logp.L()
	}
	log = log.Named("buffer.topology")

	if len(cfg.Stages) == 0 {
		return nil, nil, nil, buffer.ErrEmptyTopology
	}
	if err := validate(cfg); err != nil {
		return nil, nil, nil, err
	}

	var reg *monitoring.Registry
	if settings.Monitors.Metrics != nil {
		reg = settings.Monitors.Metrics
	}

	stages := make([]buffer.Stage[T], len(cfg.Stages))
	policies := make([]buffer.WhenFull, len(cfg.Stages))
	observers := make([]buffer.Observer, len(cfg.Stages))

	for i, desc := range cfg.Stages {
		policy := desc.WhenFull
		if i == len(cfg.Stages)-1 && policy == buffer.WhenFullOverflow {
			// Terminal stage has nothing to overflow into.
			policy = buffer.TerminalOverflowDegradesTo
		}
		policies[i] = policy

		var stageReg *monitoring.Registry
		if reg != nil {
			stageReg = reg.NewRegistry(fmt.Sprintf("stage.%d", i))
		}
		observer := buffer.NewQueueObserver(stageReg)
		observers[i] = observer

		stage, err := buildStage(desc, codec, settings, observer)
		if err != nil {
			return nil, nil, nil, err
		}
		stages[i] = stage
	}

	acker := buffer.NewAcker(releaseFuncs(stages))

	sender := buildSender(stages, policies, observers)
	receiver := newReceiver(stages, acker, sender.closed)

	log.Debugf("built topology with %d stage(s)", len(stages))
	return sender, receiver, acker, nil
}

func releaseFuncs[T buffer.Event](stages []buffer.Stage[T]) []buffer.ReleaseFunc {
	out := make([]buffer.ReleaseFunc, len(stages))
	for i, st := range stages {
		st := st
		out[i] = func(n int) error { return st.Ack(n) }
	}
	return out
}

func buildStage[T buffer.Event](desc config.StageDescriptor, codec buffer.Codec[T], settings Settings, observer buffer.Observer) (buffer.Stage[T], error) {
	switch desc.Type {
	case config.StageMemory:
		return memory.New[T](memory.Config{MaxEvents: desc.MaxEvents, Observer: observer})
	case config.StageDiskV1:
		dir, err := stageDir(settings, "diskv1")
		if err != nil {
			return nil, err
		}
		return diskv1.New[T](diskv1.Config[T]{Dir: dir, MaxSize: desc.MaxSize, Codec: codec, Observer: observer})
	case config.StageDiskV2:
		dir, err := stageDir(settings, "diskv2")
		if err != nil {
			return nil, err
		}
		return diskv2.New[T](diskv2.Config[T]{Dir: dir, MaxSize: desc.MaxSize, MaxSegmentSize: settings.MaxSegmentSize, Codec: codec, Observer: observer})
	default:
		return nil, fmt.Errorf("buffer: unknown stage type %q", desc.Type)
	}
}

// stageDir joins data_dir, buffer_id, and variant the way
// diskqueue.Settings.directoryPath() does.
func stageDir(settings Settings, variant string) (string, error) {
	if settings.DataDir == "" {
		return "", buffer.ErrRequiresDataDir
	}
	if settings.BufferID == "" {
		return "", buffer.ErrRequiresDataDir
	}
	return filepath.Join(settings.DataDir, settings.BufferID, variant), nil
}

// validate checks invariants before any stage is constructed: at most one
// of each disk variant. The caller checks that the list is non-empty.
func validate(cfg config.TopologyConfig) error {
	seenDiskV1 := false
	seenDiskV2 := false
	for _, d := range cfg.Stages {
		switch d.Type {
		case config.StageDiskV1:
			if seenDiskV1 {
				return buffer.ErrDuplicateDiskStage
			}
			seenDiskV1 = true
		case config.StageDiskV2:
			if seenDiskV2 {
				return buffer.ErrDuplicateDiskStage
			}
			seenDiskV2 = true
		}
	}
	return nil
}
