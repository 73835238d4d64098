package opsgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// ragSearchNode is the incident-only documentation lookup. It issues a
// handful of targeted queries against the document corpus and always
// advances: documentation gaps are expected, not fatal.
func (e *Engine) ragSearchNode(ctx context.Context, st State) (State, NodeName, error) {
	queries := buildRAGQueries(st)

	var docs []capability.Document
	var failures []string

	if e.caps.Documents != nil {
		for _, q := range queries {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.callTimeout)

			start := time.Now()
			hits, err := e.caps.Documents.Search(callCtx, capability.DocQuery{
				Query:          q,
				Limit:          e.cfg.ragLimit,
				ScoreThreshold: e.cfg.ragThreshold,
			})
			cancel()
			e.cfg.metrics.RecordCapabilityCall(ctx, "document_search", time.Since(start), err)

			if err != nil {
				if ctx.Err() != nil {
					return st, NextRouter, err
				}
				failures = append(failures, fmt.Sprintf("%q: %v", q, err))
				continue
			}
			docs = append(docs, hits...)
		}
	}

	st = st.bump("capability_calls", int64(len(queries)))

	if len(docs) == 0 && len(failures) > 0 {
		st = st.withFailure(NodeRAGSearch, strings.Join(failures, "; "))
	} else {
		var serr error
		st, serr = st.withSuccess(NodeRAGSearch, map[string]any{
			"queries":   queries,
			"documents": docs,
		})
		if serr != nil {
			st = st.withFailure(NodeRAGSearch, serr.Error())
		}
	}

	st.Phase = PhaseInvestigation
	return st, NextRouter, nil
}

// buildRAGQueries derives 1-3 targeted search queries from the incident
// context: the operator input plus any firing alert names collected
// earlier.
func buildRAGQueries(st State) []string {
	queries := []string{st.inputText()}

	alerts := alertNames(st)
	for _, name := range alerts {
		queries = append(queries, name+" runbook")
		if len(queries) == 3 {
			break
		}
	}
	return queries
}

// alertNames extracts alert names from the alertmanager collection
// payload, if any.
func alertNames(st State) []string {
	res, ok := st.NodeResults[nodeForSource(capability.SourceAlertmanager)]
	if !ok || res.Status != StatusSuccess {
		return nil
	}

	var payload capability.Payload
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		return nil
	}

	seen := make(map[string]bool, len(payload.Alerts))
	var names []string
	for _, alert := range payload.Alerts {
		if alert.Name == "" || seen[alert.Name] {
			continue
		}
		seen[alert.Name] = true
		names = append(names, alert.Name)
	}
	return names
}

// ragDocuments re-reads the documents stored by ragSearchNode for the
// synthesis step.
func ragDocuments(st State) []capability.Document {
	res, ok := st.NodeResults[NodeRAGSearch]
	if !ok || res.Status != StatusSuccess {
		return nil
	}

	var payload struct {
		Documents []capability.Document `json:"documents"`
	}
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		return nil
	}
	return payload.Documents
}
