// Package journal provides a durable ingest journal: every accepted batch of
// events or dimension upserts is framed, compressed, and fsynced before the
// write is acknowledged. On startup the segments are replayed into the
// stores; replay is idempotent because the stores deduplicate.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/tidemark/tidemark/pkg/types"
)

// Batch kinds carried by journal entries.
const (
	KindEvents     = "events"
	KindDimensions = "dimensions"
)

// DefaultMaxSegmentSize rotates segments at 64 MiB.
const DefaultMaxSegmentSize = 64 << 20

// Entry is one journaled ingest batch.
type Entry struct {
	LSN        uint64                  `json:"lsn"`
	Kind       string                  `json:"kind"`
	Events     []types.Event           `json:"events,omitempty"`
	Dimensions []types.DimensionRecord `json:"dimensions,omitempty"`
	Timestamp  int64                   `json:"timestamp"`
}

// Journal appends framed, snappy-compressed entries to size-rotated segment
// files. Frame layout: [length:4 LE][crc32:4 LE][snappy(json payload)].
type Journal struct {
	mu         sync.Mutex
	dir        string
	segment    *os.File
	segmentID  uint64
	offset     int64
	maxSegSize int64
	currentLSN uint64
}

// Open creates or resumes a journal in dir.
func Open(dir string, maxSegSize int64) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}
	if maxSegSize <= 0 {
		maxSegSize = DefaultMaxSegmentSize
	}

	j := &Journal{dir: dir, maxSegSize: maxSegSize}
	if err := j.resume(); err != nil {
		return nil, err
	}
	if err := j.openSegment(); err != nil {
		return nil, err
	}
	return j, nil
}

func segmentName(id uint64) string {
	return fmt.Sprintf("journal_%016x.log", id)
}

// resume finds the highest existing segment and the LSN to continue from.
func (j *Journal) resume() error {
	ids, err := segmentIDs(j.dir)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	j.segmentID = ids[len(ids)-1]

	entries, err := readSegment(filepath.Join(j.dir, segmentName(j.segmentID)))
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		j.currentLSN = entries[len(entries)-1].LSN
	}
	return nil
}

func (j *Journal) openSegment() error {
	path := filepath.Join(j.dir, segmentName(j.segmentID))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("journal: open segment: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return fmt.Errorf("journal: seek segment: %w", err)
	}
	j.segment = file
	j.offset = offset
	return nil
}

// AppendEvents journals a batch of events and returns its LSN.
func (j *Journal) AppendEvents(events []types.Event) (uint64, error) {
	return j.append(&Entry{Kind: KindEvents, Events: events})
}

// AppendDimensions journals a batch of dimension upserts and returns its LSN.
func (j *Journal) AppendDimensions(recs []types.DimensionRecord) (uint64, error) {
	return j.append(&Entry{Kind: KindDimensions, Dimensions: recs})
}

func (j *Journal) append(entry *Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.currentLSN++
	entry.LSN = j.currentLSN
	entry.Timestamp = time.Now().Unix()

	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("journal: serialize entry: %w", err)
	}
	compressed := snappy.Encode(nil, payload)
	crc := crc32.ChecksumIEEE(compressed)

	if err := binary.Write(j.segment, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return 0, fmt.Errorf("journal: write length: %w", err)
	}
	if err := binary.Write(j.segment, binary.LittleEndian, crc); err != nil {
		return 0, fmt.Errorf("journal: write checksum: %w", err)
	}
	if _, err := j.segment.Write(compressed); err != nil {
		return 0, fmt.Errorf("journal: write payload: %w", err)
	}
	if err := j.segment.Sync(); err != nil {
		return 0, fmt.Errorf("journal: fsync: %w", err)
	}
	j.offset += int64(8 + len(compressed))

	if j.offset >= j.maxSegSize {
		if err := j.rotate(); err != nil {
			return 0, err
		}
	}
	return entry.LSN, nil
}

// rotate closes the current segment and starts the next. Caller holds the
// lock.
func (j *Journal) rotate() error {
	if j.segment != nil {
		if err := j.segment.Close(); err != nil {
			return fmt.Errorf("journal: close segment: %w", err)
		}
	}
	j.segmentID++
	return j.openSegment()
}

// CurrentLSN returns the LSN of the last appended entry.
func (j *Journal) CurrentLSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.currentLSN
}

// PurgeBefore deletes closed segments whose newest entry is older than the
// cutoff (Unix seconds). The active segment is never removed. Returns the
// number of segments deleted.
func (j *Journal) PurgeBefore(cutoff int64) (int, error) {
	j.mu.Lock()
	current := j.segmentID
	j.mu.Unlock()

	ids, err := segmentIDs(j.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if id >= current {
			continue
		}
		path := filepath.Join(j.dir, segmentName(id))
		entries, err := readSegment(path)
		if err != nil {
			return removed, err
		}
		if len(entries) > 0 && entries[len(entries)-1].Timestamp >= cutoff {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("journal: remove segment: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Close fsyncs and closes the active segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.segment == nil {
		return nil
	}
	if err := j.segment.Sync(); err != nil {
		return fmt.Errorf("journal: fsync on close: %w", err)
	}
	err := j.segment.Close()
	j.segment = nil
	return err
}

// segmentIDs returns the segment IDs present in dir, ascending.
func segmentIDs(dir string) ([]uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read directory: %w", err)
	}
	var ids []uint64
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, "journal_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(name, "journal_%016x.log", &id); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}
