// Package store implements the data store service: the single source of
// truth for users, developers, games, rooms, and match logs. One mutex
// guards the in-memory catalog; every mutation rewrites the snapshot file
// before the response is returned.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/udisondev/gamehub/internal/model"
)

// catalog is the persisted shape: one JSON object holding all five
// collections plus the per-collection id counters.
type catalog struct {
	Users      map[string]*model.User      `json:"User"`
	Rooms      map[string]*model.Room      `json:"Room"`
	GameLogs   map[string]*model.GameLog   `json:"GameLog"`
	Developers map[string]*model.Developer `json:"Developer"`
	Games      map[string]*model.Game      `json:"Game"`
	Counters   map[string]int              `json:"counters"`
}

func emptyCatalog() *catalog {
	return &catalog{
		Users:      make(map[string]*model.User),
		Rooms:      make(map[string]*model.Room),
		GameLogs:   make(map[string]*model.GameLog),
		Developers: make(map[string]*model.Developer),
		Games:      make(map[string]*model.Game),
		Counters: map[string]int{
			CollectionUser:      1,
			CollectionRoom:      1,
			CollectionGameLog:   1,
			CollectionDeveloper: 1,
			CollectionGame:      1,
		},
	}
}

// Store owns the catalog and its snapshot file.
type Store struct {
	mu   sync.Mutex
	path string
	data *catalog
}

// Open loads the snapshot at path, creating a fresh catalog (and writing it
// out) when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
		}
		s.data = emptyCatalog()
		if err := s.save(); err != nil {
			return nil, err
		}
		slog.Info("created fresh catalog", "path", path)
		return s, nil
	}

	var c catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	normalize(&c)
	s.data = &c
	slog.Info("catalog loaded", "path", path,
		"users", len(c.Users), "games", len(c.Games), "rooms", len(c.Rooms))
	return s, nil
}

// normalize repairs a loaded catalog: nil maps become empty, absent counters
// default to 1, and the Room counter is reset to 1 (rooms are purged by the
// lobby on startup, so room ids restart with it).
func normalize(c *catalog) {
	if c.Users == nil {
		c.Users = make(map[string]*model.User)
	}
	if c.Rooms == nil {
		c.Rooms = make(map[string]*model.Room)
	}
	if c.GameLogs == nil {
		c.GameLogs = make(map[string]*model.GameLog)
	}
	if c.Developers == nil {
		c.Developers = make(map[string]*model.Developer)
	}
	if c.Games == nil {
		c.Games = make(map[string]*model.Game)
	}
	if c.Counters == nil {
		c.Counters = make(map[string]int)
	}
	for _, col := range []string{
		CollectionUser, CollectionRoom, CollectionGameLog,
		CollectionDeveloper, CollectionGame,
	} {
		if c.Counters[col] < 1 {
			c.Counters[col] = 1
		}
	}
	c.Counters[CollectionRoom] = 1
}

// save writes the whole catalog to a temp file and renames it into place so
// readers never observe a truncated snapshot. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot %s: %w", s.path, err)
	}
	return nil
}

// nextID allocates the next monotonic id for one collection.
// Caller holds s.mu.
func (s *Store) nextID(collection string) int {
	id := s.Counters()[collection]
	s.data.Counters[collection] = id + 1
	return id
}

// Counters returns the counter map. Caller holds s.mu.
func (s *Store) Counters() map[string]int { return s.data.Counters }

func key(id int) string { return strconv.Itoa(id) }

// Handle processes one request under the catalog mutex, including the
// snapshot write for mutations, and returns the wire response.
func (s *Store) Handle(req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Collection {
	case CollectionUser:
		return s.handleUser(req.Action, req.Data)
	case CollectionDeveloper:
		return s.handleDeveloper(req.Action, req.Data)
	case CollectionGame:
		return s.handleGame(req.Action, req.Data)
	case CollectionRoom:
		return s.handleRoom(req.Action, req.Data)
	case CollectionGameLog:
		return s.handleGameLog(req.Action, req.Data)
	default:
		return errorf("Unknown collection: %s", req.Collection)
	}
}

// Cleanup flips every online user to offline and persists. Run on shutdown
// so a data store restart never strands stale online flags.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, u := range s.data.Users {
		if u.Online == 1 {
			u.Online = 0
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.save(); err != nil {
		return fmt.Errorf("persisting cleanup: %w", err)
	}
	return nil
}

// mergeFields applies a field-wise JSON merge of fields onto row. Only keys
// present in fields change; an explicit null clears pointer fields.
func mergeFields(row any, fields json.RawMessage) error {
	if len(fields) == 0 {
		return nil
	}
	if err := json.Unmarshal(fields, row); err != nil {
		return fmt.Errorf("merging fields: %w", err)
	}
	return nil
}

// sortedByID returns map values ordered by ascending id so query results are
// deterministic.
func sortedByID[T any](m map[string]*T, id func(*T) int) []*T {
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
