package consumer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavelabs/eventbroker/internal/errs"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "consumers.db")
	r, err := Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistrySaveRejectsEmptyTopics(t *testing.T) {
	r := openTestRegistry(t)
	err := r.Save(Consumer{ID: "c1", Kind: KindHTTP, CallbackURL: "http://example.com"})
	assert.Error(t, err)
}

func TestRegistrySaveAndFind(t *testing.T) {
	r := openTestRegistry(t)
	c := Consumer{ID: NewID(), Kind: KindHTTP, CallbackURL: "http://example.com", Topics: map[string]int64{"orders": 0}}
	require.NoError(t, r.Save(c))

	got, err := r.FindByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.CallbackURL, got.CallbackURL)

	byTopic := r.FindByTopic("orders")
	require.Len(t, byTopic, 1)
	assert.Equal(t, c.ID, byTopic[0].ID)

	assert.Empty(t, r.FindByTopic("invoices"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "consumers.db")
	r1, err := Open(dbPath, nil)
	require.NoError(t, err)

	c := Consumer{ID: NewID(), Kind: KindHTTP, CallbackURL: "http://example.com", Topics: map[string]int64{"orders": 5}}
	require.NoError(t, r1.Save(c))
	require.NoError(t, r1.Close())

	r2, err := Open(dbPath, nil)
	require.NoError(t, err)
	defer r2.Close()

	got, err := r2.FindByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Topics["orders"])
}

func TestRegistryInProcessConsumerNotPersisted(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "consumers.db")
	r1, err := Open(dbPath, nil)
	require.NoError(t, err)

	c := Consumer{ID: "inproc-1", Kind: KindInProcess, Topics: map[string]int64{"$management": 0}}
	require.NoError(t, r1.Save(c))
	require.NoError(t, r1.Close())

	r2, err := Open(dbPath, nil)
	require.NoError(t, err)
	defer r2.Close()

	_, err = r2.FindByID("inproc-1")
	assert.Error(t, err, "in-process consumers must not survive a restart")
}

func TestRegistryDelete(t *testing.T) {
	r := openTestRegistry(t)
	c := Consumer{ID: NewID(), Kind: KindHTTP, CallbackURL: "http://example.com", Topics: map[string]int64{"orders": 0}}
	require.NoError(t, r.Save(c))

	require.NoError(t, r.Delete(c.ID))
	_, err := r.FindByID(c.ID)
	assert.ErrorIs(t, err, errs.ErrConsumerNotFound)
	assert.Error(t, r.Delete(c.ID), "deleting twice must fail")
}
