package consumer

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/internal/errs"
)

// Registry is the Consumer Registry (C4). HTTP and AzureEventGrid
// consumers are durably persisted in SQLite; InProcess consumers (used by
// projections, spec.md §4.9) live only in memory since a function value
// cannot be marshalled. Findings are consistent snapshots; mutations are
// linearized by a single registry mutex, matching spec.md §4.4/§5.
type Registry struct {
	db     *sql.DB
	logger *zap.Logger

	mu        sync.RWMutex
	consumers map[string]Consumer
}

// Open opens (creating if absent) the SQLite-backed registry at dbPath and
// loads any previously persisted consumers into memory.
func Open(dbPath string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errs.New(errs.KindStorageError, "open consumer registry db", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS consumers (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	callback_url TEXT NOT NULL DEFAULT '',
	event_grid_endpoint TEXT NOT NULL DEFAULT '',
	event_grid_key TEXT NOT NULL DEFAULT '',
	topics_json TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.New(errs.KindStorageError, "migrate consumer registry schema", err)
	}

	r := &Registry{db: db, logger: logger, consumers: make(map[string]Consumer)}
	if err := r.load(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	rows, err := r.db.Query(`SELECT id, kind, callback_url, event_grid_endpoint, event_grid_key, topics_json FROM consumers`)
	if err != nil {
		return errs.New(errs.KindStorageError, "load consumers", err)
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	for rows.Next() {
		var c Consumer
		var topicsJSON string
		if err := rows.Scan(&c.ID, &c.Kind, &c.CallbackURL, &c.EventGridEndpoint, &c.EventGridKey, &topicsJSON); err != nil {
			return errs.New(errs.KindStorageError, "scan consumer row", err)
		}
		if err := json.Unmarshal([]byte(topicsJSON), &c.Topics); err != nil {
			return errs.New(errs.KindStorageError, "decode consumer topics", err)
		}
		r.consumers[c.ID] = c
	}
	return rows.Err()
}

// Close releases the underlying database handle.
func (r *Registry) Close() error { return r.db.Close() }

// Save inserts or replaces a consumer record. InProcess consumers update
// only the in-memory snapshot; other kinds are also persisted to SQLite.
func (r *Registry) Save(c Consumer) error {
	if len(c.Topics) == 0 {
		return errs.New(errs.KindInvalidRequest, "consumer must subscribe to at least one topic", nil)
	}

	if c.Kind != KindInProcess {
		topicsJSON, err := json.Marshal(c.Topics)
		if err != nil {
			return errs.New(errs.KindStorageError, "encode consumer topics", err)
		}
		_, err = r.db.Exec(`
INSERT INTO consumers (id, kind, callback_url, event_grid_endpoint, event_grid_key, topics_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, callback_url=excluded.callback_url,
	event_grid_endpoint=excluded.event_grid_endpoint, event_grid_key=excluded.event_grid_key,
	topics_json=excluded.topics_json`,
			c.ID, string(c.Kind), c.CallbackURL, c.EventGridEndpoint, c.EventGridKey, string(topicsJSON))
		if err != nil {
			return errs.New(errs.KindStorageError, "persist consumer", err)
		}
	}

	r.mu.Lock()
	r.consumers[c.ID] = c
	r.mu.Unlock()
	return nil
}

// Delete removes a consumer by id, from both SQLite and memory.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.consumers[id]
	delete(r.consumers, id)
	r.mu.Unlock()

	if !ok {
		return errs.ErrConsumerNotFound
	}
	if c.Kind == KindInProcess {
		return nil
	}
	if _, err := r.db.Exec(`DELETE FROM consumers WHERE id = ?`, id); err != nil {
		return errs.New(errs.KindStorageError, "delete consumer", err)
	}
	return nil
}

// FindByID returns the consumer for id, or ErrConsumerNotFound.
func (r *Registry) FindByID(id string) (Consumer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[id]
	if !ok {
		return Consumer{}, errs.ErrConsumerNotFound
	}
	return c, nil
}

// FindByTopic returns a consistent snapshot of every consumer subscribed to
// topic.
func (r *Registry) FindByTopic(topic string) []Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Consumer
	for _, c := range r.consumers {
		if _, ok := c.Topics[topic]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All returns a consistent snapshot of every registered consumer.
func (r *Registry) All() []Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Consumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered consumers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consumers)
}

// NewID mints a fresh consumer id. Kept here (rather than calling
// uuid.New directly at call sites) so callers never need to import uuid.
func NewID() string {
	return fmt.Sprintf("consumer-%s", newUUID())
}
