package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/httputil"
)

// AuditSearcher is the optional query surface of an audit sink.
// audit.MemoryLogger implements it; write-only sinks do not.
type AuditSearcher interface {
	Search(filter audit.SearchFilter) []*audit.Event
}

func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	searcher, ok := s.auditLog.(AuditSearcher)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, "audit sink is not searchable")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := audit.SearchFilter{
		Subject: httputil.ParseQueryString(r, "subject", ""),
		AppID:   httputil.ParseQueryString(r, "app_id", ""),
		Limit:   limit,
	}
	if eventType := httputil.ParseQueryString(r, "type", ""); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		eventStatus := audit.EventStatus(status)
		filter.Status = &eventStatus
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		start, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "since must be RFC3339")
			return
		}
		filter.StartTime = &start
	}

	events := searcher.Search(filter)
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
