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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/config"
)

func TestParseSingleMemoryDefault(t *testing.T) {
	cfg, err := config.Parse([]byte("max_events: 100\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 1)

	s := cfg.Stages[0]
	assert.Equal(t, config.StageMemory, s.Type)
	assert.Equal(t, 100, s.MaxEvents)
	assert.Equal(t, buffer.WhenFullBlock, s.WhenFull)
}

func TestParseRejectsMixedSizing(t *testing.T) {
	_, err := config.Parse([]byte("max_size: 100\nmax_events: 42\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field `max_size`")
}

func TestParseMultiStage(t *testing.T) {
	src := []byte("- max_events: 42\n- max_events: 100\n  when_full: drop_newest\n")
	cfg, err := config.Parse(src)
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 2)

	assert.Equal(t, 42, cfg.Stages[0].MaxEvents)
	assert.Equal(t, buffer.WhenFullBlock, cfg.Stages[0].WhenFull)

	assert.Equal(t, 100, cfg.Stages[1].MaxEvents)
	assert.Equal(t, buffer.WhenFullDropNewest, cfg.Stages[1].WhenFull)
}

func TestParseDefaultsToMemoryWhenTypeAbsent(t *testing.T) {
	cfg, err := config.Parse([]byte("when_full: overflow\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, config.StageMemory, cfg.Stages[0].Type)
	assert.Equal(t, buffer.DefaultMaxEvents, cfg.Stages[0].MaxEvents)
}

func TestParseDiskRequiresMaxSize(t *testing.T) {
	_, err := config.Parse([]byte("type: disk\n"))
	assert.ErrorIs(t, err, buffer.ErrInvalidMaxSize)
}

func TestParseDiskRejectsMaxEvents(t *testing.T) {
	_, err := config.Parse([]byte("type: disk_v1\nmax_size: 100\nmax_events: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field `max_events`")
}

func TestParseRejectsDuplicateField(t *testing.T) {
	_, err := config.Parse([]byte("max_events: 1\nmax_events: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field `max_events`")
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := config.Parse([]byte("type: nonsense\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage type")
}

func TestParseEmptyListRejected(t *testing.T) {
	_, err := config.Parse([]byte("[]\n"))
	assert.ErrorIs(t, err, buffer.ErrEmptyTopology)
}
