package eventstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), nil)
}

func mustStore(t *testing.T, s *Store, tenant, namespace, topic string, seq int64, ts time.Time) *Event {
	t.Helper()
	ev, err := s.StoreEvent(tenant, namespace, topic, WriteRequest{
		Type: "order.created", Payload: []byte(`{"ok":true}`), Sequence: seq, Timestamp: ts,
	})
	require.NoError(t, err)
	return ev
}

func TestStoreEventAndGetEventByID(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	stored := mustStore(t, s, "t1", "n1", "orders", 1, ts)

	got, err := s.GetEvent("t1", "n1", "orders", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, int64(1), got.Sequence)
}

func TestGetEventReturnsNilWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	mustStore(t, s, "t1", "n1", "orders", 1, time.Now())

	got, err := s.GetEvent("t1", "n1", "orders", 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetEventOnUnknownTopicReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetEvent("t1", "n1", "never-created", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetEventsLimitTruncatesToMinOfLimitAndAvailable(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for seq := int64(1); seq <= 5; seq++ {
		mustStore(t, s, "t1", "n1", "orders", seq, ts)
	}

	// Testable Property 8: getEvents(topic, sinceEventId=T-k, limit=L)
	// returns min(L, T.sequence-k) events.
	got, err := s.GetEvents("t1", "n1", "orders", 2, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 3, "since=2 with 5 total leaves 3 available, under the limit of 10")
	assert.Equal(t, []int64{3, 4, 5}, sequencesOf(got))

	got, err = s.GetEvents("t1", "n1", "orders", 0, "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2, "limit caps below the 5 available")
	assert.Equal(t, []int64{1, 2}, sequencesOf(got), "results are sorted by sequence ascending before truncation")

	got, err = s.GetEvents("t1", "n1", "orders", 4, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "only one event remains after sequence 4")
}

func TestGetEventsZeroLimitMeansNoCap(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now()
	for seq := int64(1); seq <= 3; seq++ {
		mustStore(t, s, "t1", "n1", "orders", seq, ts)
	}

	got, err := s.GetEvents("t1", "n1", "orders", 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGetEventsRestrictedToDateDirectory(t *testing.T) {
	s := newTestStore(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mustStore(t, s, "t1", "n1", "orders", 1, day1)
	mustStore(t, s, "t1", "n1", "orders", 2, day2)

	got, err := s.GetEvents("t1", "n1", "orders", 0, "2026-03-01", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Sequence)

	got, err = s.GetEvents("t1", "n1", "orders", 0, "2026-03-02", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Sequence)

	got, err = s.GetEvents("t1", "n1", "orders", 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2, "no date restriction returns events from every date directory")
}

func TestGetEventsOnUnknownTopicReturnsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetEvents("t1", "n1", "never-created", 0, "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetLatestEventIDTracksHighestSequence(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now()

	latest, err := s.GetLatestEventID("t1", "n1", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest, "no events stored yet")

	mustStore(t, s, "t1", "n1", "orders", 1, ts)
	mustStore(t, s, "t1", "n1", "orders", 2, ts)

	latest, err = s.GetLatestEventID("t1", "n1", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)
}

func TestStoreEventNeverLeavesATempFileUnderTheFinalPath(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
	mustStore(t, s, "t1", "n1", "orders", 1, ts)

	var jsonFiles, tmpFiles int
	root := s.topicRoot("t1", "n1", "orders")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		switch {
		case filepath.Ext(path) == ".tmp":
			tmpFiles++
		case filepath.Ext(path) == ".json":
			jsonFiles++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, jsonFiles)
	assert.Zero(t, tmpFiles, "the atomic write protocol must never leave a .tmp file behind on success")
}

func TestStoreEventsReportsEveryPersistedEventInOrder(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now()

	stored, err := s.StoreEvents("t1", "n1", "orders", []WriteRequest{
		{Type: "a", Payload: []byte(`{}`), Sequence: 1, Timestamp: ts},
		{Type: "b", Payload: []byte(`{}`), Sequence: 2, Timestamp: ts},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	got, err := s.GetEvents("t1", "n1", "orders", 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func sequencesOf(events []*Event) []int64 {
	out := make([]int64, len(events))
	for i, ev := range events {
		out[i] = ev.Sequence
	}
	return out
}
