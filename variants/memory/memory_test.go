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

package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/variants/memory"
)

type intEvent int

func (intEvent) ByteSize() int { return 8 }

func TestNewRejectsZeroMaxEvents(t *testing.T) {
	_, err := memory.New[intEvent](memory.Config{MaxEvents: 0})
	assert.ErrorIs(t, err, buffer.ErrInvalidMaxEvents)
}

func TestPushPopOrder(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 4})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		outcome, err := s.Push(intEvent(i))
		require.NoError(t, err)
		assert.Equal(t, buffer.Accepted, outcome)
	}
	assert.Equal(t, 3, s.LenEvents())

	for i := 0; i < 3; i++ {
		event, ok := s.TryPop()
		require.True(t, ok)
		assert.Equal(t, intEvent(i), event)
	}
	_, ok := s.TryPop()
	assert.False(t, ok)
}

func TestPushFullAtWatermark(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		outcome, err := s.Push(intEvent(i))
		require.NoError(t, err)
		require.Equal(t, buffer.Accepted, outcome)
	}

	outcome, err := s.Push(intEvent(99))
	require.NoError(t, err)
	assert.Equal(t, buffer.Full, outcome)
}

func TestPopFreesSlotBeforeAck(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 1})
	require.NoError(t, err)

	_, err = s.Push(intEvent(1))
	require.NoError(t, err)

	_, ok := s.TryPop()
	require.True(t, ok)

	// the slot is free again as soon as the event is popped -- no Ack yet
	outcome, err := s.Push(intEvent(2))
	require.NoError(t, err)
	assert.Equal(t, buffer.Accepted, outcome)
}

func TestPopSignalsSpaceNotify(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 1})
	require.NoError(t, err)

	_, err = s.Push(intEvent(1))
	require.NoError(t, err)

	wait := s.SpaceNotify()
	_, ok := s.TryPop()
	require.True(t, ok)

	select {
	case <-wait:
	default:
		t.Fatal("expected SpaceNotify to fire after Pop")
	}
}

func TestAckSignalsSpaceNotify(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 1})
	require.NoError(t, err)

	_, err = s.Push(intEvent(1))
	require.NoError(t, err)
	_, _ = s.TryPop()

	wait := s.SpaceNotify()
	require.NoError(t, s.Ack(1))

	select {
	case <-wait:
	default:
		t.Fatal("expected SpaceNotify to fire after Ack")
	}
}

func TestPushAfterCloseReturnsErrClosed(t *testing.T) {
	s, err := memory.New[intEvent](memory.Config{MaxEvents: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	outcome, err := s.Push(intEvent(1))
	assert.ErrorIs(t, err, buffer.ErrClosed)
	assert.Equal(t, buffer.Full, outcome)
}
