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

// Package diskv1 implements the DiskV1 stage variant: an append-only,
// monotonically-keyed record log with an in-memory ordered index rebuilt
// by a sequential scan at open, and eager compaction on Ack.
//
// Layout, per buffer directory:
//
//	data.log  append-only records: u64 key | u32 len | u64 xxh3 | payload
//	ack       single u64 acked-through key, replaced via write-temp-then-rename
//
// Compaction happens synchronously inside Ack: the log is rewritten
// keeping only records whose key is still enqueued or in-flight. This
// trades write amplification for a trivially-correct reclamation scheme;
// batching compaction is a performance tuning concern out of scope here.
package diskv1

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/obsbuffer/buffer"
	"github.com/obsbuffer/buffer/internal/notify"
)

const (
	recordHeaderSize = 8 + 4 + 8 // key, len, checksum
	logFileName      = "data.log"
	ackFileName      = "ack"
)

// Config configures a Stage.
type Config[E buffer.Event] struct {
	// Dir is the buffer's on-disk directory (already namespaced by
	// buffer ID by the caller). Created if it does not exist.
	Dir string
	// MaxSize is the maximum total on-disk payload size, in bytes, of
	// unacknowledged records. Must be greater than zero.
	MaxSize int64
	// Codec encodes/decodes E for on-disk storage.
	Codec buffer.Codec[E]
	// Observer receives the stage's metrics. If nil, a no-op Observer is
	// used.
	Observer buffer.Observer
}

type indexEntry struct {
	key    uint64
	offset int64
	size   int64 // payload size
}

// Stage is the DiskV1 buffer.Stage[T] implementation.
type Stage[E buffer.Event] struct {
	dir      string
	maxSize  int64
	codec    buffer.Codec[E]
	observer buffer.Observer

	mu         sync.Mutex
	f          *os.File
	nextKey    uint64
	index      []indexEntry // ordered by key, unread+in-flight records only
	readCursor int          // index of the next record to pop
	inFlight   int          // count of popped-unacked records, oldest at index[readCursor-inFlight:readCursor]
	totalSize  int64        // sum of payload sizes currently in index

	itemNotify  *notify.Signal
	spaceNotify *notify.Signal

	closed bool
}

// New opens (or creates) a DiskV1 stage rooted at cfg.Dir, recovering its
// index by scanning data.log from the start.
func New[E buffer.Event](cfg Config[E]) (*Stage[E], error) {
	if cfg.MaxSize <= 0 {
		return nil, buffer.ErrInvalidMaxSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", buffer.ErrFailedToOpenDisk, err)
	}
	obs := cfg.Observer
	if obs == nil {
		obs = buffer.NewQueueObserver(nil)
	}

	logPath := filepath.Join(cfg.Dir, logFileName)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", buffer.ErrFailedToOpenDisk, err)
	}

	ackedThrough, hasAck, err := readAckFile(filepath.Join(cfg.Dir, ackFileName))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", buffer.ErrFailedToOpenDisk, err)
	}

	index, nextKey, corrupt, err := scanLog(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", buffer.ErrFailedToOpenDisk, err)
	}
	if corrupt > 0 {
		obs.Warning()
		for i := 0; i < corrupt; i++ {
			obs.Dropped(buffer.DropReasonCorruption)
		}
		// Cut the torn or corrupt tail off so later pushes follow the last
		// valid record.
		var end int64
		if len(index) > 0 {
			last := index[len(index)-1]
			end = last.offset + recordHeaderSize + last.size
		}
		if err := f.Truncate(end); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", buffer.ErrFailedToOpenDisk, err)
		}
	}

	// Keys never go back to or below the acked-through key, even when the
	// compacted log is empty.
	if hasAck && nextKey <= ackedThrough {
		nextKey = ackedThrough + 1
	}

	// Drop anything already acknowledged from the recovered index.
	kept := index[:0]
	var totalSize int64
	for _, e := range index {
		if hasAck && e.key <= ackedThrough {
			continue
		}
		kept = append(kept, e)
		totalSize += e.size
	}

	s := &Stage[E]{
		dir:         cfg.Dir,
		maxSize:     cfg.MaxSize,
		codec:       cfg.Codec,
		observer:    obs,
		f:           f,
		nextKey:     nextKey,
		index:       kept,
		totalSize:   totalSize,
		itemNotify:  notify.New(),
		spaceNotify: notify.New(),
	}
	obs.MaxBytes(int(cfg.MaxSize))
	obs.Restore(len(kept), int(totalSize))
	return s, nil
}

// readAckFile returns the acked-through key, and false if no key has been
// acknowledged yet (no ack file, or one too short to hold a key).
func readAckFile(path string) (uint64, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) < 8 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func writeAckFile(dir string, key uint64) error {
	tmp := filepath.Join(dir, ackFileName+".tmp")
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ackFileName))
}

// scanLog reads data.log from the start, returning the index of valid
// records, the next key to assign, and a count of records dropped for
// failing their checksum (recovery continues past a corrupt record by
// treating it, and everything after it in that entry, as the true end of
// the log -- a torn write at the tail looks identical to corruption and
// is handled the same way).
func scanLog(f *os.File) ([]indexEntry, uint64, int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, err
	}
	r := bufio.NewReader(f)

	var index []indexEntry
	var offset int64
	var nextKey uint64
	var corrupt int

	header := make([]byte, recordHeaderSize)
	for {
		n, err := io.ReadFull(r, header)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			// Torn header at the tail: truncate here.
			corrupt++
			break
		}
		key := binary.BigEndian.Uint64(header[0:8])
		size := binary.BigEndian.Uint32(header[8:12])
		checksum := binary.BigEndian.Uint64(header[12:20])

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			corrupt++
			break
		}
		if xxh3.Hash(payload) != checksum {
			corrupt++
			break
		}

		recordSize := int64(recordHeaderSize) + int64(size)
		index = append(index, indexEntry{key: key, offset: offset, size: int64(size)})
		offset += recordSize
		if key >= nextKey {
			nextKey = key + 1
		}
	}
	return index, nextKey, corrupt, nil
}

func (s *Stage[E]) Push(event E) (buffer.Outcome, error) {
	payload, err := s.codec.Encode(event)
	if err != nil {
		return buffer.Full, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return buffer.Full, buffer.ErrClosed
	}
	if s.totalSize+int64(len(payload)) > s.maxSize {
		s.mu.Unlock()
		return buffer.Full, nil
	}

	key := s.nextKey
	s.nextKey++

	offset, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		s.mu.Unlock()
		return buffer.Full, err
	}

	header := make([]byte, recordHeaderSize)
	binary.BigEndian.PutUint64(header[0:8], key)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))
	binary.BigEndian.PutUint64(header[12:20], xxh3.Hash(payload))

	if _, err := s.f.Write(header); err != nil {
		s.mu.Unlock()
		return buffer.Full, err
	}
	if _, err := s.f.Write(payload); err != nil {
		s.mu.Unlock()
		return buffer.Full, err
	}

	s.index = append(s.index, indexEntry{key: key, offset: offset, size: int64(len(payload))})
	s.totalSize += int64(len(payload))
	s.mu.Unlock()

	s.observer.EventsAdded(1, len(payload))
	s.itemNotify.Broadcast()
	return buffer.Accepted, nil
}

func (s *Stage[E]) TryPop() (E, bool) {
	var zero E
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.readCursor
	if pos >= len(s.index) {
		return zero, false
	}
	entry := s.index[pos]

	payload := make([]byte, entry.size)
	if _, err := s.f.ReadAt(payload, entry.offset+recordHeaderSize); err != nil {
		return zero, false
	}
	event, err := s.codec.Decode(payload)
	if err != nil {
		return zero, false
	}

	s.readCursor++
	s.inFlight++
	return event, true
}

func (s *Stage[E]) Ack(n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	if n > s.inFlight {
		n = s.inFlight
	}
	s.inFlight -= n

	var ackedKey uint64
	var releasedBytes int
	if n > 0 {
		ackedKey = s.index[n-1].key
		for _, e := range s.index[:n] {
			releasedBytes += int(e.size)
		}
		s.index = s.index[n:]
		s.readCursor -= n
		s.totalSize -= int64(releasedBytes)
	}
	dir := s.dir
	s.mu.Unlock()

	if n == 0 {
		return nil
	}
	if err := writeAckFile(dir, ackedKey); err != nil {
		return err
	}
	if err := s.compact(); err != nil {
		return err
	}

	s.observer.EventsRemoved(n, releasedBytes)
	s.spaceNotify.Broadcast()
	return nil
}

// compact rewrites data.log keeping only records still referenced by the
// in-memory index, then reopens the file. Called after every Ack: simple
// and correct, at the cost of O(remaining bytes) work per Ack call.
func (s *Stage[E]) compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := filepath.Join(s.dir, logFileName+".compact")
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	newIndex := make([]indexEntry, len(s.index))
	var offset int64
	for i, e := range s.index {
		payload := make([]byte, e.size)
		if _, err := s.f.ReadAt(payload, e.offset+recordHeaderSize); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		header := make([]byte, recordHeaderSize)
		binary.BigEndian.PutUint64(header[0:8], e.key)
		binary.BigEndian.PutUint32(header[8:12], uint32(e.size))
		binary.BigEndian.PutUint64(header[12:20], xxh3.Hash(payload))
		if _, err := tmp.Write(header); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if _, err := tmp.Write(payload); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		newIndex[i] = indexEntry{key: e.key, offset: offset, size: e.size}
		offset += int64(recordHeaderSize) + e.size
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()
	s.f.Close()

	logPath := filepath.Join(s.dir, logFileName)
	if err := os.Rename(tmpPath, logPath); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	s.f = f
	s.index = newIndex
	return nil
}

func (s *Stage[E]) LenEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index) - s.readCursor
}

func (s *Stage[E]) LenBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.totalSize)
}

func (s *Stage[E]) ItemNotify() <-chan struct{}  { return s.itemNotify.Wait() }
func (s *Stage[E]) SpaceNotify() <-chan struct{} { return s.spaceNotify.Wait() }

func (s *Stage[E]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

var _ buffer.Stage[byteSizer] = (*Stage[byteSizer])(nil)

type byteSizer struct{}

func (byteSizer) ByteSize() int { return 0 }
