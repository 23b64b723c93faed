// Package model holds value types shared across engine components: the
// EventId wire format.
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kavelabs/eventbroker/internal/errs"
)

// EventID identifies a single stored event. The canonical form is
// "<topic>-<sequence>"; the tenant-scoped form prefixes
// "<tenant>/<namespace>/" (spec.md §3). Sequence is always strictly
// positive.
type EventID struct {
	Tenant    string // empty for the legacy (non-tenant-scoped) form
	Namespace string // empty for the legacy form
	Topic     string
	Sequence  int64
}

// String renders the EventId in whichever form it was parsed/constructed
// with: tenant-scoped if Tenant and Namespace are set, legacy otherwise.
func (id EventID) String() string {
	base := fmt.Sprintf("%s-%d", id.Topic, id.Sequence)
	if id.Tenant == "" || id.Namespace == "" {
		return base
	}
	return fmt.Sprintf("%s/%s/%s", id.Tenant, id.Namespace, base)
}

// ParseEventID parses both the legacy "<topic>-<sequence>" form and the
// tenant-scoped "<tenant>/<namespace>/<topic>-<sequence>" form (spec.md §3,
// Testable Property 5).
func ParseEventID(s string) (EventID, error) {
	tenant, namespace, rest := "", "", s
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		prefix := s[:idx]
		rest = s[idx+1:]
		parts := strings.SplitN(prefix, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return EventID{}, errs.New(errs.KindInvalidRequest, fmt.Sprintf("malformed tenant-scoped event id %q", s), nil)
		}
		tenant, namespace = parts[0], parts[1]
	}

	sep := strings.LastIndex(rest, "-")
	if sep <= 0 || sep == len(rest)-1 {
		return EventID{}, errs.New(errs.KindInvalidRequest, fmt.Sprintf("malformed event id %q", s), nil)
	}
	topic := rest[:sep]
	seqStr := rest[sep+1:]
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || seq <= 0 {
		return EventID{}, errs.New(errs.KindInvalidRequest, fmt.Sprintf("malformed sequence in event id %q", s), err)
	}

	return EventID{Tenant: tenant, Namespace: namespace, Topic: topic, Sequence: seq}, nil
}

// Legacy returns the canonical "<topic>-<sequence>" form, dropping any
// tenant/namespace prefix.
func (id EventID) Legacy() string {
	return fmt.Sprintf("%s-%d", id.Topic, id.Sequence)
}
