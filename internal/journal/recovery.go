package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Replay streams every journaled entry in LSN order through fn. Corrupt or
// truncated frames end the affected segment's replay; everything recovered
// before them is kept. Recovery is idempotent because the stores the entries
// replay into deduplicate.
func Replay(dir string, fn func(*Entry) error) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	ids, err := segmentIDs(dir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		entries, err := readSegment(filepath.Join(dir, segmentName(id)))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// readSegment decodes every valid frame in one segment file.
func readSegment(path string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open segment: %w", err)
	}
	defer file.Close()

	var entries []*Entry
	for {
		var length uint32
		if err := binary.Read(file, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("journal: read frame length: %w", err)
		}
		var crc uint32
		if err := binary.Read(file, binary.LittleEndian, &crc); err != nil {
			break
		}

		compressed := make([]byte, length)
		if _, err := io.ReadFull(file, compressed); err != nil {
			// Truncated tail from a crash mid-write; recovery keeps what
			// came before.
			break
		}

		if crc32.ChecksumIEEE(compressed) != crc {
			log.Printf("journal: checksum mismatch in %s, skipping frame", path)
			continue
		}
		payload, err := snappy.Decode(nil, compressed)
		if err != nil {
			log.Printf("journal: corrupt frame in %s: %v", path, err)
			continue
		}

		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			log.Printf("journal: undecodable entry in %s: %v", path, err)
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
