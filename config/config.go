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

// Package config decodes a declarative topology description (a single
// stage object, or an ordered list of stage objects) into a
// TopologyConfig.
//
// Decoding is done directly over gopkg.in/yaml.v3's yaml.Node rather than
// unmarshaling into map[string]any or using elastic-agent-libs/config's
// go-ucfg reflection: both of those collapse duplicate mapping keys
// before user code ever sees them, which would silently hide a
// duplicate-field config mistake. Walking Node.Content pairs directly
// keeps every key occurrence visible to the walker, reproducing the
// original Rust serde MapAccess visitor's duplicate-field and
// unknown-field rejection (lib/vector-buffers/src/config.rs,
// visit_map_impl) instead of merely approximating it.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/obsbuffer/buffer"
)

// StageType names a StageDescriptor's variant.
type StageType string

const (
	StageMemory StageType = "memory"
	StageDiskV1 StageType = "disk_v1"
	StageDiskV2 StageType = "disk"
)

// StageDescriptor is one entry in a TopologyConfig.
type StageDescriptor struct {
	Type      StageType
	MaxEvents int // Memory only
	MaxSize   int64
	WhenFull  buffer.WhenFull
}

// TopologyConfig is an ordered, non-empty sequence of StageDescriptor.
type TopologyConfig struct {
	Stages []StageDescriptor
}

// recognizedKeys are the only keys visit_map_impl would have accepted.
var recognizedKeys = map[string]bool{
	"type":       true,
	"max_events": true,
	"max_size":   true,
	"when_full":  true,
}

// Parse decodes src, which must be either a single stage mapping or a
// sequence of stage mappings, into a TopologyConfig.
func Parse(src []byte) (TopologyConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return TopologyConfig{}, fmt.Errorf("config: %w", err)
	}
	if len(doc.Content) == 0 {
		return TopologyConfig{}, buffer.ErrEmptyTopology
	}
	root := doc.Content[0]

	var nodes []*yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		nodes = root.Content
	case yaml.MappingNode:
		nodes = []*yaml.Node{root}
	default:
		return TopologyConfig{}, fmt.Errorf("config: expected a stage object or a list of stage objects, got %v", root.Tag)
	}
	if len(nodes) == 0 {
		return TopologyConfig{}, buffer.ErrEmptyTopology
	}

	stages := make([]StageDescriptor, 0, len(nodes))
	for i, n := range nodes {
		d, err := decodeStage(n)
		if err != nil {
			return TopologyConfig{}, fmt.Errorf("config: stage %d: %w", i, err)
		}
		stages = append(stages, d)
	}
	return TopologyConfig{Stages: stages}, nil
}

// decodeStage walks a mapping node's Content pairs directly, rather than
// decoding into a map, so a key seen twice is caught here instead of the
// second occurrence silently overwriting the first.
func decodeStage(n *yaml.Node) (StageDescriptor, error) {
	if n.Kind != yaml.MappingNode {
		return StageDescriptor{}, fmt.Errorf("expected a mapping, got %v", n.Tag)
	}

	seen := make(map[string]bool)
	values := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if !recognizedKeys[key] {
			return StageDescriptor{}, fmt.Errorf("unknown field `%s`", key)
		}
		if seen[key] {
			return StageDescriptor{}, fmt.Errorf("duplicate field `%s`", key)
		}
		seen[key] = true
		values[key] = n.Content[i+1]
	}

	stageType := StageMemory
	if v, ok := values["type"]; ok {
		stageType = StageType(v.Value)
		switch stageType {
		case StageMemory, StageDiskV1, StageDiskV2:
		default:
			return StageDescriptor{}, fmt.Errorf("unknown stage type `%s`", v.Value)
		}
	}

	whenFull := buffer.WhenFullBlock
	if v, ok := values["when_full"]; ok {
		wf, err := parseWhenFull(v.Value)
		if err != nil {
			return StageDescriptor{}, err
		}
		whenFull = wf
	}

	d := StageDescriptor{Type: stageType, WhenFull: whenFull}

	switch stageType {
	case StageMemory:
		if _, ok := values["max_size"]; ok {
			return StageDescriptor{}, fmt.Errorf("unknown field `max_size`")
		}
		d.MaxEvents = buffer.DefaultMaxEvents
		if v, ok := values["max_events"]; ok {
			var n int
			if err := v.Decode(&n); err != nil {
				return StageDescriptor{}, fmt.Errorf("max_events: %w", err)
			}
			if n <= 0 {
				return StageDescriptor{}, buffer.ErrInvalidMaxEvents
			}
			d.MaxEvents = n
		}
	case StageDiskV1, StageDiskV2:
		if _, ok := values["max_events"]; ok {
			return StageDescriptor{}, fmt.Errorf("unknown field `max_events`")
		}
		v, ok := values["max_size"]
		if !ok {
			return StageDescriptor{}, buffer.ErrInvalidMaxSize
		}
		var n int64
		if err := v.Decode(&n); err != nil {
			return StageDescriptor{}, fmt.Errorf("max_size: %w", err)
		}
		if n <= 0 {
			return StageDescriptor{}, buffer.ErrInvalidMaxSize
		}
		d.MaxSize = n
	}

	return d, nil
}

func parseWhenFull(v string) (buffer.WhenFull, error) {
	switch v {
	case "block":
		return buffer.WhenFullBlock, nil
	case "drop_newest":
		return buffer.WhenFullDropNewest, nil
	case "overflow":
		return buffer.WhenFullOverflow, nil
	default:
		return 0, fmt.Errorf("unknown when_full value `%s`", v)
	}
}
