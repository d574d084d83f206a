package registry

import "github.com/braidhq/engine/internal/policy"

// defaultTools is the Braid CRM tool surface exposed to the model
// layer. Source files name the tool-definition modules the functions
// runtime hosts.
var defaultTools = []Tool{
	// Leads
	{Name: "list_leads", SourceFile: "leads.js", FunctionName: "listLeads", Policy: policy.ReadOnly},
	{Name: "get_lead", SourceFile: "leads.js", FunctionName: "getLead", Policy: policy.ReadOnly},
	{Name: "create_lead", SourceFile: "leads.js", FunctionName: "createLead", Policy: policy.Write},
	{Name: "update_lead", SourceFile: "leads.js", FunctionName: "updateLead", Policy: policy.Write},
	{Name: "qualify_lead", SourceFile: "leads.js", FunctionName: "qualifyLead", Policy: policy.Write},
	{Name: "convert_lead", SourceFile: "leads.js", FunctionName: "convertLead", Policy: policy.Write},
	{Name: "delete_lead", SourceFile: "leads.js", FunctionName: "deleteLead", Policy: policy.Delete},

	// Accounts
	{Name: "list_accounts", SourceFile: "accounts.js", FunctionName: "listAccounts", Policy: policy.ReadOnly},
	{Name: "get_account", SourceFile: "accounts.js", FunctionName: "getAccount", Policy: policy.ReadOnly},
	{Name: "create_account", SourceFile: "accounts.js", FunctionName: "createAccount", Policy: policy.Write},
	{Name: "update_account", SourceFile: "accounts.js", FunctionName: "updateAccount", Policy: policy.Write},
	{Name: "delete_account", SourceFile: "accounts.js", FunctionName: "deleteAccount", Policy: policy.Delete},

	// Contacts
	{Name: "search_contacts", SourceFile: "contacts.js", FunctionName: "searchContacts", Policy: policy.ReadOnly},
	{Name: "get_contact", SourceFile: "contacts.js", FunctionName: "getContact", Policy: policy.ReadOnly},
	{Name: "create_contact", SourceFile: "contacts.js", FunctionName: "createContact", Policy: policy.Write},
	{Name: "update_contact", SourceFile: "contacts.js", FunctionName: "updateContact", Policy: policy.Write},
	{Name: "delete_contact", SourceFile: "contacts.js", FunctionName: "deleteContact", Policy: policy.Delete},

	// Opportunities
	{Name: "list_opportunities_by_stage", SourceFile: "opportunities.js", FunctionName: "listOpportunitiesByStage", Policy: policy.ReadOnly},
	{Name: "get_opportunity", SourceFile: "opportunities.js", FunctionName: "getOpportunity", Policy: policy.ReadOnly},
	{Name: "create_opportunity", SourceFile: "opportunities.js", FunctionName: "createOpportunity", Policy: policy.Write},
	{Name: "update_opportunity", SourceFile: "opportunities.js", FunctionName: "updateOpportunity", Policy: policy.Write},
	{Name: "update_opportunity_stage", SourceFile: "opportunities.js", FunctionName: "updateOpportunityStage", Policy: policy.Write},
	{Name: "delete_opportunity", SourceFile: "opportunities.js", FunctionName: "deleteOpportunity", Policy: policy.Delete},

	// Activities
	{Name: "list_activities", SourceFile: "activities.js", FunctionName: "listActivities", Policy: policy.ReadOnly},
	{Name: "create_activity", SourceFile: "activities.js", FunctionName: "createActivity", Policy: policy.Write},
	{Name: "update_activity", SourceFile: "activities.js", FunctionName: "updateActivity", Policy: policy.Write},
	{Name: "complete_activity", SourceFile: "activities.js", FunctionName: "completeActivity", Policy: policy.Write},
	{Name: "delete_activity", SourceFile: "activities.js", FunctionName: "deleteActivity", Policy: policy.Delete},

	// Notes
	{Name: "list_notes", SourceFile: "notes.js", FunctionName: "listNotes", Policy: policy.ReadOnly},
	{Name: "create_note", SourceFile: "notes.js", FunctionName: "createNote", Policy: policy.Write},
	{Name: "update_note", SourceFile: "notes.js", FunctionName: "updateNote", Policy: policy.Write},
	{Name: "delete_note", SourceFile: "notes.js", FunctionName: "deleteNote", Policy: policy.Delete},

	// Business development sources
	{Name: "list_bizdev_sources", SourceFile: "bizdev.js", FunctionName: "listBizdevSources", Policy: policy.ReadOnly},
	{Name: "create_bizdev_source", SourceFile: "bizdev.js", FunctionName: "createBizdevSource", Policy: policy.Write},
	{Name: "update_bizdev_source", SourceFile: "bizdev.js", FunctionName: "updateBizdevSource", Policy: policy.Write},
	{Name: "delete_bizdev_source", SourceFile: "bizdev.js", FunctionName: "deleteBizdevSource", Policy: policy.Delete},

	// Analytics
	{Name: "get_sales_snapshot", SourceFile: "analytics.js", FunctionName: "getSalesSnapshot", Policy: policy.ReadOnly},
	{Name: "get_dashboard_metrics", SourceFile: "analytics.js", FunctionName: "getDashboardMetrics", Policy: policy.ReadOnly},

	// Administration
	{Name: "reassign_owner", SourceFile: "admin.js", FunctionName: "reassignOwner", Policy: policy.AdminOnly},
	{Name: "merge_accounts", SourceFile: "admin.js", FunctionName: "mergeAccounts", Policy: policy.AdminOnly},
	{Name: "export_tenant_data", SourceFile: "admin.js", FunctionName: "exportTenantData", Policy: policy.AdminOnly},

	// System jobs
	{Name: "recompute_rollups", SourceFile: "system.js", FunctionName: "recomputeRollups", Policy: policy.SystemInternal},
	{Name: "reindex_search", SourceFile: "system.js", FunctionName: "reindexSearch", Policy: policy.SystemInternal},

	// AI assistance
	{Name: "suggest_next_actions", SourceFile: "ai.js", FunctionName: "suggestNextActions", Policy: policy.AISuggestions},
	{Name: "summarize_pipeline", SourceFile: "ai.js", FunctionName: "summarizePipeline", Policy: policy.AISuggestions},
	{Name: "draft_followup_email", SourceFile: "ai.js", FunctionName: "draftFollowupEmail", Policy: policy.AISuggestions},

	// External enrichment
	{Name: "enrich_company", SourceFile: "enrichment.js", FunctionName: "enrichCompany", Policy: policy.ExternalAPI},
	{Name: "lookup_company_news", SourceFile: "enrichment.js", FunctionName: "lookupCompanyNews", Policy: policy.ExternalAPI},
}

// defaultTTLs overrides the cache TTL (seconds) for tools whose reads
// tolerate more or less staleness than the default.
var defaultTTLs = map[string]int{
	"get_sales_snapshot":          300,
	"get_dashboard_metrics":       120,
	"list_accounts":               120,
	"list_leads":                  60,
	"list_opportunities_by_stage": 60,
	"search_contacts":             60,
	"get_lead":                    180,
	"get_account":                 180,
	"get_contact":                 180,
	"get_opportunity":             180,
}
