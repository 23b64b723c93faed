// Package eventstore implements the Event Store (C3): events are persisted
// as individual JSON files under a topic/date/group path tree and read back
// in strict sequence order (spec.md §4.3).
package eventstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/internal/errs"
	"github.com/kavelabs/eventbroker/internal/fsatomic"
)

// Event is the durable record persisted for each append.
type Event struct {
	ID        string          `json:"id"`
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// WriteRequest is one event to durably append.
type WriteRequest struct {
	Type      string
	Payload   json.RawMessage
	Sequence  int64
	Timestamp time.Time
}

// Store persists and reads events rooted at dataRoot.
type Store struct {
	dataRoot string
	logger   *zap.Logger
}

// New constructs a Store rooted at dataRoot.
func New(dataRoot string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dataRoot: dataRoot, logger: logger}
}

func groupDir(sequence int64) string {
	return fmt.Sprintf("%04d", sequence/1000)
}

func dateDir(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func eventFileName(topic string, sequence int64) string {
	return fmt.Sprintf("%s-%d.json", topic, sequence)
}

func (s *Store) topicRoot(tenant, namespace, topic string) string {
	return filepath.Join(s.dataRoot, tenant, namespace, topic)
}

func (s *Store) eventPath(tenant, namespace, topic string, sequence int64, timestamp time.Time) string {
	return filepath.Join(s.topicRoot(tenant, namespace, topic), dateDir(timestamp), groupDir(sequence), eventFileName(topic, sequence))
}

// StoreEvent persists a single event using the temp-file-then-fsync-then-
// rename protocol. Any I/O failure surfaces as a storage error; partial
// files are never observable under the final name.
func (s *Store) StoreEvent(tenant, namespace, topic string, req WriteRequest) (*Event, error) {
	id := fmt.Sprintf("%s-%d", topic, req.Sequence)
	ev := &Event{
		ID:        id,
		Sequence:  req.Sequence,
		Timestamp: req.Timestamp,
		Type:      req.Type,
		Payload:   req.Payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.New(errs.KindStorageError, "encode event", err)
	}
	path := s.eventPath(tenant, namespace, topic, req.Sequence, req.Timestamp)
	if err := fsatomic.WriteFile(path, data, 0o644); err != nil {
		return nil, errs.New(errs.KindStorageError, "persist event", err)
	}
	return ev, nil
}

// StoreEvents appends each event in order. Batch atomicity is not
// promised: the returned slice reports which events were durably appended,
// in order, stopping at the first failure (spec.md §4.3, §4.7).
func (s *Store) StoreEvents(tenant, namespace, topic string, reqs []WriteRequest) ([]*Event, error) {
	out := make([]*Event, 0, len(reqs))
	for _, req := range reqs {
		ev, err := s.StoreEvent(tenant, namespace, topic, req)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetEvent walks the topic subtree looking for the given sequence, returning
// nil if absent.
func (s *Store) GetEvent(tenant, namespace, topic string, sequence int64) (*Event, error) {
	root := s.topicRoot(tenant, namespace, topic)
	want := eventFileName(topic, sequence)

	var found *Event
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Name() != want {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		var ev Event
		if jerr := json.Unmarshal(data, &ev); jerr != nil {
			return jerr
		}
		found = &ev
		return filepath.SkipAll
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errs.New(errs.KindStorageError, "read event", err)
	}
	return found, nil
}

// GetEvents returns events strictly after sinceSequence (0 means from the
// beginning), optionally restricted to a single date directory, sorted by
// sequence ascending, truncated to limit (0 = no cap).
func (s *Store) GetEvents(tenant, namespace, topic string, sinceSequence int64, date string, limit int) ([]*Event, error) {
	root := s.topicRoot(tenant, namespace, topic)
	if date != "" {
		root = filepath.Join(root, date)
	}

	var events []*Event
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasSuffix(d.Name(), ".json.tmp") {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		var ev Event
		if jerr := json.Unmarshal(data, &ev); jerr != nil {
			return jerr
		}
		if ev.Sequence > sinceSequence {
			events = append(events, &ev)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errs.New(errs.KindStorageError, "list events", err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// GetLatestEventID returns the last stored sequence for a topic, or 0 if no
// events have been stored.
func (s *Store) GetLatestEventID(tenant, namespace, topic string) (int64, error) {
	events, err := s.GetEvents(tenant, namespace, topic, 0, "", 0)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Sequence, nil
}
