// Package summary renders dispatch results as short human-readable
// strings for the chat surface. It is pure: no I/O, no clock, no
// randomness.
package summary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/masking"
)

// collectionKeys are the payload keys that carry lists of records,
// checked in order.
var collectionKeys = []string{
	"leads", "accounts", "contacts", "opportunities", "activities",
	"notes", "sources", "results", "items", "records",
}

const (
	maxNamed = 5  // entries rendered with names
	maxIDs   = 25 // ids rendered for follow-up calls
)

// Summarize maps a Result into a short human string.
func Summarize(tool string, r core.Result) string {
	if !r.Success {
		return summarizeError(r.Error)
	}

	switch data := r.Data.(type) {
	case nil:
		return "Done."
	case string:
		return data
	case []any:
		return summarizeCollection(nounFor(tool), data)
	case map[string]any:
		if strings.Contains(tool, "snapshot") {
			return summarizeSnapshot(data)
		}
		if strings.Contains(tool, "dashboard") {
			return summarizeDashboard(data)
		}
		for _, key := range collectionKeys {
			if items, ok := data[key].([]any); ok {
				return summarizeCollection(key, items)
			}
		}
		if _, ok := data["id"]; ok {
			return summarizeEntity(nounFor(tool), data)
		}
		return fmt.Sprintf("Completed %s.", tool)
	default:
		return fmt.Sprintf("%v", data)
	}
}

// summarizeError distinguishes "not found" from "invalid input" from
// "access denied" from "server error" from "network error". When the
// failure carries an HTTP status, the status wins.
func summarizeError(e *core.Error) string {
	if e == nil {
		return "The operation failed."
	}

	if e.Code != 0 {
		switch {
		case e.Code == 400:
			return "The request was invalid: " + e.Message
		case e.Code == 401 || e.Code == 403:
			return "Access was denied by the backend."
		case e.Code == 404:
			return "The requested record was not found."
		case e.Code >= 500:
			return "The backend hit a server error; try again shortly."
		}
	}

	switch e.Kind {
	case core.ErrNotFound:
		if e.Entity != "" && e.ID != "" {
			return fmt.Sprintf("No %s found with id %s.", e.Entity, e.ID)
		}
		return "The requested record was not found."
	case core.ErrValidation:
		return "Invalid input: " + e.Message
	case core.ErrPermissionDenied, core.ErrInsufficientPerms:
		return "Access denied: " + e.Message
	case core.ErrNetwork:
		return "Could not reach the backend; check connectivity and retry."
	case core.ErrRateLimitExceeded:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("Rate limit reached; retry in %d seconds.", e.RetryAfter)
		}
		return "Rate limit reached; retry shortly."
	case core.ErrConfirmation:
		return e.Message
	case core.ErrAPI:
		return "The backend reported an error: " + e.Message
	default:
		return e.Message
	}
}

func summarizeCollection(noun string, items []any) string {
	deduped := dedupeByID(items)
	if len(deduped) == 0 {
		return "No matching records."
	}

	var named []string
	var ids []string
	for _, item := range deduped {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if len(named) < maxNamed {
			if n := displayName(m); n != "" {
				if id != "" {
					named = append(named, fmt.Sprintf("%s (%s)", n, id))
				} else {
					named = append(named, n)
				}
			}
		}
		if id != "" && len(ids) < maxIDs {
			ids = append(ids, id)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s", len(deduped), countNoun(len(deduped), noun))
	if len(named) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(named, ", "))
		if len(deduped) > len(named) {
			fmt.Fprintf(&b, " and %d more", len(deduped)-len(named))
		}
	}
	b.WriteString(".")
	if len(ids) > len(named) {
		fmt.Fprintf(&b, " IDs: %s.", strings.Join(ids, ", "))
	}
	return b.String()
}

func summarizeEntity(noun string, m map[string]any) string {
	id, _ := m["id"].(string)
	name := displayName(m)

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s %s (%s)", capitalize(noun), name, id)
	} else {
		fmt.Fprintf(&b, "%s %s", capitalize(noun), id)
	}

	var details []string
	for _, field := range []string{"status", "stage", "amount", "value", "email", "owner", "company"} {
		if v, ok := m[field]; ok && v != nil && v != "" {
			details = append(details, fmt.Sprintf("%s: %v", field, v))
		}
	}
	if len(details) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(details, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func summarizeSnapshot(data map[string]any) string {
	var parts []string
	for _, field := range []string{"total_leads", "total_accounts", "total_opportunities", "open_opportunities"} {
		if v, ok := data[field]; ok {
			parts = append(parts, fmt.Sprintf("%v %s", v, strings.TrimPrefix(field, "total_")))
		}
	}
	if v, ok := data["pipeline_value"]; ok {
		parts = append(parts, fmt.Sprintf("pipeline value %v", v))
	}

	var b strings.Builder
	b.WriteString("Sales snapshot")
	if len(parts) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString(".")

	if top, ok := data["top_accounts"].([]any); ok && len(top) > 0 {
		var names []string
		for _, a := range top {
			if m, ok := a.(map[string]any); ok {
				if n := displayName(m); n != "" {
					if rev, ok := m["revenue"]; ok {
						names = append(names, fmt.Sprintf("%s (%v)", n, rev))
					} else {
						names = append(names, n)
					}
				}
			}
		}
		if len(names) > 0 {
			fmt.Fprintf(&b, " Top accounts by revenue: %s.", strings.Join(names, ", "))
		}
	}
	return b.String()
}

// summarizeDashboard renders preformatted counts in key order.
func summarizeDashboard(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, data[k]))
	}
	if len(parts) == 0 {
		return "Dashboard is empty."
	}
	return "Dashboard: " + strings.Join(parts, ", ") + "."
}

func dedupeByID(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if id, ok := m["id"].(string); ok && id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
		}
		out = append(out, item)
	}
	return out
}

func displayName(m map[string]any) string {
	for _, field := range []string{"name", "full_name", "title", "subject", "company"} {
		if s, ok := m[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// nounFor picks the noun for a tool's records.
func nounFor(tool string) string {
	if entity := masking.EntityFor(tool); entity != "" {
		return entity
	}
	return "record"
}

func countNoun(n int, noun string) string {
	if n == 1 {
		if strings.HasSuffix(noun, "ies") {
			return strings.TrimSuffix(noun, "ies") + "y"
		}
		return strings.TrimSuffix(noun, "s")
	}
	if strings.HasSuffix(noun, "s") {
		return noun
	}
	if strings.HasSuffix(noun, "y") {
		return strings.TrimSuffix(noun, "y") + "ies"
	}
	return noun + "s"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
