// Package archive keeps the autopilot journal on disk as size-bounded JSONL
// shards with a small index, so a long-running agent never grows a single
// file without limit and readers can page from the newest shard back.
package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cpunion/moltbot/pkg/types"
)

// DefaultShardSize is the number of entries per shard when none is given.
const DefaultShardSize = 500

const indexFile = "index.json"

// Index lists the shards of an archive.
type Index struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	ShardSize int       `json:"shard_size"`
	// Oldest first.
	Shards []Shard `json:"shards"`
	Total  int     `json:"total"`
}

// Shard is one JSONL file.
type Shard struct {
	Seq     int    `json:"seq"`
	File    string `json:"file"`
	Entries int    `json:"entries"`
}

// LoadIndex reads the index of the archive in dir.
func LoadIndex(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	idx := &Index{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("parse archive index: %w", err)
	}
	if idx.Version == 0 {
		idx.Version = 1
	}
	return idx, nil
}

func saveIndex(dir string, idx *Index) error {
	idx.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Writer appends journal entries, rotating to a new shard when the current
// one is full. It satisfies autopilot.Sink.
type Writer struct {
	mu sync.Mutex

	dir       string
	shardSize int
	idx       *Index

	file    *os.File
	buf     *bufio.Writer
	seq     int
	entries int
}

// Open opens the archive in dir, creating it if needed. An existing archive
// is resumed on its newest shard; a missing index is rebuilt from the shard
// files on disk.
func Open(dir string, shardSize int) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("archive dir is required")
	}
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	idx, err := LoadIndex(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		idx = rebuildIndex(dir)
	}
	idx.ShardSize = shardSize

	w := &Writer{dir: dir, shardSize: shardSize, idx: idx}
	if n := len(idx.Shards); n > 0 {
		last := idx.Shards[n-1]
		if err := w.open(last.Seq, last.Entries); err != nil {
			return nil, err
		}
		return w, saveIndex(dir, idx)
	}
	if err := w.rotate(1); err != nil {
		return nil, err
	}
	return w, nil
}

// Dir returns the archive directory.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) open(seq, entries int) error {
	f, err := os.OpenFile(filepath.Join(w.dir, shardName(seq)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.seq = seq
	w.entries = entries
	return nil
}

func (w *Writer) rotate(seq int) error {
	if w.file != nil {
		_ = w.buf.Flush()
		_ = w.file.Close()
	}
	if err := w.open(seq, 0); err != nil {
		return err
	}
	w.idx.Shards = append(w.idx.Shards, Shard{Seq: seq, File: shardName(seq)})
	return saveIndex(w.dir, w.idx)
}

// Write appends one entry. A new shard is only opened when an entry is about
// to land in a full one, so the index never lists empty trailing shards.
func (w *Writer) Write(e types.LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.New("archive closed")
	}
	if w.entries >= w.shardSize {
		if err := w.rotate(w.seq + 1); err != nil {
			return fmt.Errorf("rotate archive: %w", err)
		}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}

	w.entries++
	w.idx.Total++
	w.idx.Shards[len(w.idx.Shards)-1].Entries = w.entries
	return saveIndex(w.dir, w.idx)
}

// Close flushes the current shard and the index.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	if ierr := saveIndex(w.dir, w.idx); err == nil {
		err = ierr
	}
	return err
}

// Recent returns up to n of the newest archived entries, oldest first.
func Recent(dir string, n int) ([]types.LogEntry, error) {
	idx, err := LoadIndex(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []types.LogEntry
	for i := len(idx.Shards) - 1; i >= 0 && len(out) < n; i-- {
		entries, err := readShard(filepath.Join(dir, idx.Shards[i].File))
		if err != nil {
			return nil, err
		}
		out = append(entries, out...)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func readShard(path string) ([]types.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// skip a torn last line
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

func rebuildIndex(dir string) *Index {
	idx := &Index{Version: 1}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return idx
	}
	for _, d := range dirents {
		seq := parseShardSeq(d.Name())
		if d.IsDir() || seq <= 0 {
			continue
		}
		n := countLines(filepath.Join(dir, d.Name()))
		idx.Shards = append(idx.Shards, Shard{Seq: seq, File: d.Name(), Entries: n})
		idx.Total += n
	}
	sort.Slice(idx.Shards, func(i, j int) bool { return idx.Shards[i].Seq < idx.Shards[j].Seq })
	return idx
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n
}

func shardName(seq int) string {
	return fmt.Sprintf("journal-%06d.jsonl", seq)
}

// parseShardSeq extracts 12 from "journal-000012.jsonl".
func parseShardSeq(name string) int {
	if !strings.HasPrefix(name, "journal-") || !strings.HasSuffix(name, ".jsonl") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "journal-"), ".jsonl"))
	if err != nil {
		return 0
	}
	return n
}
