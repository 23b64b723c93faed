package publish

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/dispatch"
	"github.com/kavelabs/eventbroker/core/eventstore"
	"github.com/kavelabs/eventbroker/core/schema"
	"github.com/kavelabs/eventbroker/core/topic"
	"github.com/kavelabs/eventbroker/core/topicstore"
	"github.com/kavelabs/eventbroker/internal/errs"
)

const orderCreatedSchema = `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"id":{"type":"string"},"total":{"type":"number"}},"required":["id","total"]}`

func newTestService(t *testing.T) (*Service, *topic.Service, *eventstore.Store) {
	t.Helper()
	store := topicstore.New(t.TempDir(), nil)
	registry := schema.NewRegistry(nil)
	topics := topic.New(store, registry, nil)

	events := eventstore.New(t.TempDir(), nil)
	reg, err := consumer.Open(filepath.Join(t.TempDir(), "consumers.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	manager := dispatch.NewManager(events, reg, nil, nil)
	t.Cleanup(manager.StopAllDispatchers)

	return New(topics, events, manager, nil), topics, events
}

func TestPublishRejectsEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Publish("default", "default", nil)
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
}

func TestPublishSucceedsAndReturnsEventIds(t *testing.T) {
	svc, topics, _ := newTestService(t)
	_, err := topics.CreateTopic("r1", "tr1", "nr1", "default", "default", "orders",
		[]schema.Schema{{EventType: "order.created", Body: json.RawMessage(orderCreatedSchema)}})
	require.NoError(t, err)

	ids, err := svc.Publish("default", "default", []Request{
		{Topic: "orders", Type: "order.created", Payload: json.RawMessage(`{"id":"A","total":9.5}`)},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "orders-1", ids[0])
}

func TestPublishRejectsInvalidPayloadWithoutAppending(t *testing.T) {
	svc, topics, events := newTestService(t)
	_, err := topics.CreateTopic("r1", "tr1", "nr1", "default", "default", "orders",
		[]schema.Schema{{EventType: "order.created", Body: json.RawMessage(orderCreatedSchema)}})
	require.NoError(t, err)

	_, err = svc.Publish("default", "default", []Request{
		{Topic: "orders", Type: "order.created", Payload: json.RawMessage(`{"id":"B"}`)},
	})
	assert.True(t, errs.Is(err, errs.KindSchemaValidation))

	latest, err := events.GetLatestEventID("default", "default", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Publish("default", "default", []Request{
		{Topic: "ghost", Type: "x", Payload: json.RawMessage(`{}`)},
	})
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestPublishBypassesValidationForManagementScope(t *testing.T) {
	svc, topics, _ := newTestService(t)
	_, err := topics.CreateTopic("r1", "tr1", "nr1", topic.SystemTenant, topic.ManagementNamespace, "tenants", nil)
	require.NoError(t, err)

	ids, err := svc.Publish(topic.SystemTenant, topic.ManagementNamespace, []Request{
		{Topic: "tenants", Type: "tenant.created", Payload: json.RawMessage(`{"resourceId":"t1"}`)},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
