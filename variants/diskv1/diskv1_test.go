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

package diskv1_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/variants/diskv1"
)

// fakeObserver records Dropped/Warning calls so recovery tests can assert
// on the distinguishing counters without standing up a monitoring.Registry.
type fakeObserver struct {
	dropsPolicy     int
	dropsCorruption int
	warnings        int
}

func (f *fakeObserver) MaxBytes(int)           {}
func (f *fakeObserver) Restore(int, int)       {}
func (f *fakeObserver) EventsAdded(int, int)   {}
func (f *fakeObserver) EventsRemoved(int, int) {}
func (f *fakeObserver) Dropped(reason buffer.DropReason) {
	if reason == buffer.DropReasonCorruption {
		f.dropsCorruption++
	} else {
		f.dropsPolicy++
	}
}
func (f *fakeObserver) Warning() { f.warnings++ }

type stringEvent string

func (s stringEvent) ByteSize() int { return len(s) }

type stringCodec struct{}

func (stringCodec) Encode(s stringEvent) ([]byte, error) { return []byte(s), nil }
func (stringCodec) Decode(b []byte) (stringEvent, error) { return stringEvent(b), nil }

type intEvent uint64

func (intEvent) ByteSize() int { return 8 }

type intCodec struct{}

func (intCodec) Encode(e intEvent) ([]byte, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(e))
	return buf[:], nil
}
func (intCodec) Decode(b []byte) (intEvent, error) {
	return intEvent(binary.BigEndian.Uint64(b)), nil
}

func TestNewRejectsZeroMaxSize(t *testing.T) {
	_, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: t.TempDir(), MaxSize: 0, Codec: stringCodec{},
	})
	assert.ErrorIs(t, err, buffer.ErrInvalidMaxSize)
}

func TestPushPopAckOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: dir, MaxSize: 1024, Codec: stringCodec{},
	})
	require.NoError(t, err)

	for _, v := range []string{"a", "bb", "ccc"} {
		outcome, err := s.Push(stringEvent(v))
		require.NoError(t, err)
		require.Equal(t, buffer.Accepted, outcome)
	}
	assert.Equal(t, 3, s.LenEvents())

	for _, want := range []string{"a", "bb", "ccc"} {
		event, ok := s.TryPop()
		require.True(t, ok)
		assert.Equal(t, stringEvent(want), event)
	}

	require.NoError(t, s.Ack(3))
	assert.Equal(t, 0, s.LenEvents())
	assert.Equal(t, 0, s.LenBytes())
}

func TestPushFullAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	s, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: dir, MaxSize: 3, Codec: stringCodec{},
	})
	require.NoError(t, err)

	outcome, err := s.Push(stringEvent("abc"))
	require.NoError(t, err)
	require.Equal(t, buffer.Accepted, outcome)

	outcome, err = s.Push(stringEvent("d"))
	require.NoError(t, err)
	assert.Equal(t, buffer.Full, outcome)
}

func TestRecoversIndexByScanningOnReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := diskv1.New[intEvent](diskv1.Config[intEvent]{
		Dir: dir, MaxSize: 1024, Codec: intCodec{},
	})
	require.NoError(t, err)
	for i := uint64(0); i < 5; i++ {
		_, err := s1.Push(intEvent(i))
		require.NoError(t, err)
	}
	// Pop and ack the first two before "crashing".
	for i := 0; i < 2; i++ {
		_, ok := s1.TryPop()
		require.True(t, ok)
	}
	require.NoError(t, s1.Ack(2))
	require.NoError(t, s1.Close())

	s2, err := diskv1.New[intEvent](diskv1.Config[intEvent]{
		Dir: dir, MaxSize: 1024, Codec: intCodec{},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s2.LenEvents())

	event, ok := s2.TryPop()
	require.True(t, ok)
	assert.Equal(t, intEvent(2), event)
}

func TestRecoversFromTornTailRecordOnReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: dir, MaxSize: 1024, Codec: stringCodec{},
	})
	require.NoError(t, err)
	for _, v := range []string{"abc", "defgh"} {
		_, err := s1.Push(stringEvent(v))
		require.NoError(t, err)
	}
	require.NoError(t, s1.Close())

	// Simulate a crash mid-write: truncate data.log so the final record's
	// payload is torn off.
	logPath := filepath.Join(dir, "data.log")
	st, err := os.Stat(logPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(logPath, st.Size()-2))

	obs := &fakeObserver{}
	s2, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: dir, MaxSize: 1024, Codec: stringCodec{}, Observer: obs,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s2.LenEvents())
	event, ok := s2.TryPop()
	require.True(t, ok)
	assert.Equal(t, stringEvent("abc"), event)

	assert.Equal(t, 1, obs.dropsCorruption)
	assert.Equal(t, 1, obs.warnings)
	assert.Equal(t, 0, obs.dropsPolicy)
}

func TestAckBeyondInFlightClampsToInFlight(t *testing.T) {
	dir := t.TempDir()
	s, err := diskv1.New[stringEvent](diskv1.Config[stringEvent]{
		Dir: dir, MaxSize: 1024, Codec: stringCodec{},
	})
	require.NoError(t, err)

	_, err = s.Push(stringEvent("x"))
	require.NoError(t, err)
	_, ok := s.TryPop()
	require.True(t, ok)

	// Nothing else is in flight; acking too much should not panic or
	// underflow.
	require.NoError(t, s.Ack(5))
	assert.Equal(t, 0, s.LenEvents())
}
