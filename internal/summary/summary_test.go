package summary

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/braidhq/engine/internal/core"
)

func TestSummarizeCollection(t *testing.T) {
	r := core.Ok(map[string]any{
		"leads": []any{
			map[string]any{"id": "l-1", "name": "Acme Corp"},
			map[string]any{"id": "l-2", "name": "Globex"},
			map[string]any{"id": "l-1", "name": "Acme Corp"}, // duplicate
		},
	})
	out := Summarize("list_leads", r)
	assert.Contains(t, out, "Found 2 leads")
	assert.Contains(t, out, "Acme Corp (l-1)")
	assert.Contains(t, out, "Globex (l-2)")
}

func TestSummarizeLargeCollectionCapsNamesAndKeepsIDs(t *testing.T) {
	items := make([]any, 12)
	for i := range items {
		items[i] = map[string]any{
			"id":   fmt.Sprintf("c-%d", i),
			"name": fmt.Sprintf("Contact %d", i),
		}
	}
	out := Summarize("search_contacts", core.Ok(map[string]any{"contacts": items}))

	assert.Contains(t, out, "Found 12 contacts")
	assert.Contains(t, out, "and 7 more")
	assert.Contains(t, out, "IDs:")
	assert.Contains(t, out, "c-11")
}

func TestSummarizeEmptyCollectionIsNotAnError(t *testing.T) {
	out := Summarize("list_leads", core.Ok(map[string]any{"leads": []any{}}))
	assert.Equal(t, "No matching records.", out)
}

func TestSummarizeSingleEntity(t *testing.T) {
	r := core.Ok(map[string]any{
		"id":     "opp-7",
		"name":   "Q4 renewal",
		"stage":  "negotiation",
		"amount": 48000,
	})
	out := Summarize("get_opportunity", r)
	assert.Contains(t, out, "Opportunity Q4 renewal (opp-7)")
	assert.Contains(t, out, "stage: negotiation")
	assert.Contains(t, out, "amount: 48000")
}

func TestSummarizeSnapshot(t *testing.T) {
	r := core.Ok(map[string]any{
		"total_leads":    120,
		"total_accounts": 45,
		"pipeline_value": "1.2M",
		"top_accounts": []any{
			map[string]any{"name": "Acme Corp", "revenue": "500k"},
			map[string]any{"name": "Globex", "revenue": "300k"},
		},
	})
	out := Summarize("get_sales_snapshot", r)
	assert.Contains(t, out, "Sales snapshot")
	assert.Contains(t, out, "120 leads")
	assert.Contains(t, out, "pipeline value 1.2M")
	assert.Contains(t, out, "Top accounts by revenue: Acme Corp (500k), Globex (300k)")
}

func TestSummarizeDashboard(t *testing.T) {
	r := core.Ok(map[string]any{"active_sources": 4, "meetings_this_week": 7})
	out := Summarize("get_dashboard_metrics", r)
	assert.Equal(t, "Dashboard: active_sources: 4, meetings_this_week: 7.", out)
}

func TestSummarizeHTTPStatusBuckets(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{400, "The request was invalid"},
		{401, "Access was denied"},
		{403, "Access was denied"},
		{404, "was not found"},
		{500, "server error"},
		{503, "server error"},
	}
	for _, tc := range tests {
		e := core.NewError(core.ErrAPI, "upstream said no")
		e.Code = tc.code
		out := Summarize("get_lead", core.Fail(e))
		assert.Contains(t, out, tc.want, "code %d", tc.code)
	}
}

func TestSummarizeErrorKinds(t *testing.T) {
	notFound := core.NewError(core.ErrNotFound, "missing")
	notFound.Entity = "lead"
	notFound.ID = "l-9"
	assert.Equal(t, "No lead found with id l-9.", Summarize("get_lead", core.Fail(notFound)))

	rate := core.NewError(core.ErrRateLimitExceeded, "limit")
	rate.RetryAfter = 60
	assert.Equal(t, "Rate limit reached; retry in 60 seconds.", Summarize("list_leads", core.Fail(rate)))

	out := Summarize("delete_lead", core.Failf(core.ErrValidation, "lead_id is required"))
	assert.True(t, strings.HasPrefix(out, "Invalid input:"))

	out = Summarize("list_leads", core.Failf(core.ErrNetwork, "dial tcp: timeout"))
	assert.Contains(t, out, "Could not reach the backend")
}

func TestSummarizePlainPayloads(t *testing.T) {
	assert.Equal(t, "Done.", Summarize("recompute_rollups", core.Ok(nil)))
	assert.Equal(t, "Lead deleted.", Summarize("delete_lead", core.Ok("Lead deleted.")))
}

func TestCountNoun(t *testing.T) {
	assert.Equal(t, "lead", countNoun(1, "leads"))
	assert.Equal(t, "leads", countNoun(3, "leads"))
	assert.Equal(t, "opportunities", countNoun(2, "opportunity"))
	assert.Equal(t, "activity", countNoun(1, "activities"))
	assert.Equal(t, "records", countNoun(2, "record"))
}
