// Package publish implements the Publish Service (C7): preflight validation
// of a whole batch, then per-request atomic sequencing, durable append, and
// a dispatcher wake-up (spec.md §4.7).
package publish

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/core/dispatch"
	"github.com/kavelabs/eventbroker/core/eventstore"
	"github.com/kavelabs/eventbroker/core/model"
	"github.com/kavelabs/eventbroker/core/topic"
	"github.com/kavelabs/eventbroker/internal/errs"
)

// Request is one event to publish, prior to sequencing.
type Request struct {
	Topic   string
	Type    string
	Payload json.RawMessage
}

// Service is the Publish Service (C7).
type Service struct {
	topics     *topic.Service
	events     *eventstore.Store
	dispatcher *dispatch.Manager
	logger     *zap.Logger
	now        func() time.Time
}

// New constructs a Publish Service.
func New(topics *topic.Service, events *eventstore.Store, dispatcher *dispatch.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{topics: topics, events: events, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// Publish validates the whole batch, then sequences and appends each
// request in order, notifying the Dispatcher Manager of every distinct
// topic touched. It returns the EventId of each request, in order: in the
// legacy "<topic>-<sequence>" form for the default tenant/namespace, and in
// the tenant-scoped form otherwise.
func (s *Service) Publish(tenant, namespace string, requests []Request) ([]string, error) {
	if len(requests) == 0 {
		return nil, errs.New(errs.KindInvalidRequest, "publish batch must not be empty", errs.ErrIllegalArgument)
	}

	if err := s.preflight(tenant, namespace, requests); err != nil {
		return nil, err
	}

	batchTime := s.now().UTC()
	ids := make([]string, 0, len(requests))
	touched := make(map[string]struct{})

	for _, req := range requests {
		seq, err := s.topics.GetAndIncrementSequence(tenant, namespace, req.Topic)
		if err != nil {
			return ids, err
		}

		if _, err := s.events.StoreEvent(tenant, namespace, req.Topic, eventstore.WriteRequest{
			Type:      req.Type,
			Payload:   req.Payload,
			Sequence:  seq,
			Timestamp: batchTime,
		}); err != nil {
			return ids, err
		}

		id := model.EventID{Tenant: tenant, Namespace: namespace, Topic: req.Topic, Sequence: seq}
		if tenant == topic.DefaultTenant && namespace == topic.DefaultNamespace {
			ids = append(ids, id.Legacy())
		} else {
			ids = append(ids, id.String())
		}
		touched[req.Topic] = struct{}{}
	}

	if s.dispatcher != nil {
		for t := range touched {
			s.dispatcher.NotifyEventsPublished(tenant, namespace, t)
		}
	}

	return ids, nil
}

// preflight validates the entire batch before any event is appended: every
// topic must exist, every payload must be a JSON object, and every payload
// must pass schema validation — unless the request targets the reserved
// management scope, which bypasses schema validation entirely
// (spec.md §4.10, SPEC_FULL.md Open Question 1).
func (s *Service) preflight(tenant, namespace string, requests []Request) error {
	management := topic.IsManagementScope(tenant, namespace)

	for _, req := range requests {
		exists, err := s.topics.TopicExists(tenant, namespace, req.Topic)
		if err != nil {
			return err
		}
		if !exists {
			return errs.New(errs.KindNotFound, "topic \""+req.Topic+"\" does not exist", errs.ErrTopicNotFound)
		}

		var asMap map[string]any
		if err := json.Unmarshal(req.Payload, &asMap); err != nil {
			return errs.New(errs.KindInvalidRequest, "payload must be a JSON object", err)
		}

		if management {
			continue
		}

		key := topic.Key(tenant, namespace, req.Topic)
		if _, err := s.topics.Registry().Validate(key, req.Type, asMap); err != nil {
			return err
		}
	}
	return nil
}
