// ABOUTME: Line-oriented snapshot format for the dedup store.
// ABOUTME: Writes are point-in-time and atomic; loads fully replace contents.

package dedup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389/courier/internal/wire"
)

const (
	groupSeparator = "---"
	fieldSeparator = " - "
)

// ErrMalformedSnapshot is wrapped by every snapshot parse failure.
var ErrMalformedSnapshot = errors.New("dedup: malformed snapshot")

// WriteTo writes a consistent snapshot of the store to w.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	data := s.renderLocked()
	s.mu.Unlock()

	n, err := w.Write(data)
	return int64(n), err
}

// Store writes a snapshot to path, replacing any existing file atomically.
func (s *Store) Store(path string) error {
	s.mu.Lock()
	data := s.renderLocked()
	entries := len(s.index)
	s.mu.Unlock()

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("writing dedup snapshot: %w", err)
	}
	s.logger.Debug("dedup snapshot stored", "path", path, "entries", entries)
	return nil
}

// ReadFrom replaces the store's contents with the snapshot read from r. On a
// parse error the store is left unchanged.
func (s *Store) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	snap, err := parseSnapshot(data)
	if err != nil {
		return int64(len(data)), err
	}

	s.mu.Lock()
	dropped := s.replaceLocked(snap)
	size := len(s.index)
	s.mu.Unlock()

	s.metrics.Size(size)
	if dropped > 0 {
		s.logger.Warn("snapshot exceeded capacity, oldest entries dropped",
			"dropped", dropped,
			"capacity", s.capacity,
		)
	}
	return int64(len(data)), nil
}

// Load replaces the store's contents with the snapshot at path.
func (s *Store) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dedup snapshot: %w", err)
	}
	defer f.Close()

	if _, err := s.ReadFrom(f); err != nil {
		return fmt.Errorf("loading dedup snapshot %s: %w", path, err)
	}
	s.logger.Info("dedup snapshot loaded", "path", path, "entries", s.Len())
	return nil
}

// RunSnapshots stores a snapshot to path every interval until ctx is done.
// It does not write on exit: adds can still be in flight when ctx ends, so
// the caller stores the final snapshot after its writers have stopped.
// Failures are logged and do not stop the loop.
func (s *Store) RunSnapshots(ctx context.Context, path string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Store(path); err != nil {
				s.logger.Error("periodic dedup snapshot failed", "path", path, "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// renderLocked formats the snapshot. Must be called with mu held.
func (s *Store) renderLocked() []byte {
	var buf bytes.Buffer
	for ge := s.groupSeq.Front(); ge != nil; ge = ge.Next() {
		g := ge.Value.(*group)
		if len(g.entries) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%s\n%d%s%d\n", groupSeparator, g.scope.Type, fieldSeparator, g.scope.ScopeID)

		lines := make([]string, 0, len(g.entries))
		for hash, e := range g.entries {
			lines = append(lines, hash.String()+fieldSeparator+strconv.FormatInt(e.insertedAt, 10))
		}
		sort.Strings(lines)
		for _, l := range lines {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

type snapshotEntry struct {
	scope Scope
	hash  wire.Hash
	at    int64
}

type snapshot struct {
	scopes  []Scope // file order
	entries []snapshotEntry
}

func parseSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	seenScope := make(map[Scope]bool)
	seenID := make(map[identity]bool)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	const (
		wantSeparator = iota
		wantHeader
		wantEntry
	)
	state := wantSeparator
	var current Scope
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()

		switch {
		case line == groupSeparator && state != wantHeader:
			state = wantHeader

		case state == wantHeader:
			scope, err := parseHeader(line)
			if err != nil {
				return snapshot{}, fmt.Errorf("%w: line %d: %v", ErrMalformedSnapshot, lineNo, err)
			}
			if seenScope[scope] {
				return snapshot{}, fmt.Errorf("%w: line %d: group %d - %d repeated", ErrMalformedSnapshot, lineNo, scope.Type, scope.ScopeID)
			}
			seenScope[scope] = true
			snap.scopes = append(snap.scopes, scope)
			current = scope
			state = wantEntry

		case state == wantEntry:
			hash, at, err := parseEntry(line)
			if err != nil {
				return snapshot{}, fmt.Errorf("%w: line %d: %v", ErrMalformedSnapshot, lineNo, err)
			}
			id := identity{typ: current.Type, hash: hash}
			if seenID[id] {
				return snapshot{}, fmt.Errorf("%w: line %d: hash %s repeated for type %d", ErrMalformedSnapshot, lineNo, hash, current.Type)
			}
			seenID[id] = true
			snap.entries = append(snap.entries, snapshotEntry{scope: current, hash: hash, at: at})

		default:
			return snapshot{}, fmt.Errorf("%w: line %d: expected %q, got %q", ErrMalformedSnapshot, lineNo, groupSeparator, line)
		}
	}
	if err := sc.Err(); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if state == wantHeader {
		return snapshot{}, fmt.Errorf("%w: missing group header at end", ErrMalformedSnapshot)
	}
	return snap, nil
}

func parseHeader(line string) (Scope, error) {
	left, right, ok := strings.Cut(line, fieldSeparator)
	if !ok {
		return Scope{}, fmt.Errorf("group header %q lacks %q", line, fieldSeparator)
	}
	t, err := strconv.ParseUint(left, 10, 8)
	if err != nil {
		return Scope{}, fmt.Errorf("message type %q: %v", left, err)
	}
	id, err := strconv.ParseUint(right, 10, 32)
	if err != nil {
		return Scope{}, fmt.Errorf("client scope %q: %v", right, err)
	}
	return Scope{Type: uint8(t), ScopeID: uint32(id)}, nil
}

func parseEntry(line string) (wire.Hash, int64, error) {
	left, right, ok := strings.Cut(line, fieldSeparator)
	if !ok {
		return wire.Hash{}, 0, fmt.Errorf("entry %q lacks %q", line, fieldSeparator)
	}
	hash, err := wire.ParseHash(left)
	if err != nil {
		return wire.Hash{}, 0, err
	}
	if strings.ToLower(left) != left {
		return wire.Hash{}, 0, fmt.Errorf("hash %q is not lowercase", left)
	}
	at, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return wire.Hash{}, 0, fmt.Errorf("timestamp %q: %v", right, err)
	}
	return hash, at, nil
}

// replaceLocked swaps in snap, keeping the newest capacity entries. Eviction
// order follows insertion timestamps, ties broken by file position. The file
// records milliseconds only and lists a group's hashes in hex order, so
// entries added within the same millisecond reload in hex order, not their
// original insertion order. Returns the number of entries dropped. Must be
// called with mu held.
func (s *Store) replaceLocked(snap snapshot) int {
	s.reset()

	for _, scope := range snap.scopes {
		g := &group{scope: scope, entries: make(map[wire.Hash]*entry)}
		g.elem = s.groupSeq.PushBack(g)
		s.groups[scope] = g
	}

	entries := make([]snapshotEntry, len(snap.entries))
	copy(entries, snap.entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].at < entries[j].at })

	dropped := 0
	if len(entries) > s.capacity {
		dropped = len(entries) - s.capacity
		entries = entries[dropped:]
	}

	for _, se := range entries {
		g := s.groups[se.scope]
		id := identity{typ: se.scope.Type, hash: se.hash}
		e := &entry{id: id, group: g, insertedAt: se.at}
		e.elem = s.order.PushBack(e)
		g.entries[se.hash] = e
		s.index[id] = e
	}

	for ge := s.groupSeq.Front(); ge != nil; {
		next := ge.Next()
		g := ge.Value.(*group)
		if len(g.entries) == 0 {
			s.groupSeq.Remove(ge)
			delete(s.groups, g.scope)
		}
		ge = next
	}
	return dropped
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place so readers never observe a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
