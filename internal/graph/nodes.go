package graph

// DefaultNodes declares the dependency edges and interface surface of
// every registered tool. Dependencies point at the tools a function
// calls into on the backend, so the graph mirrors runtime coupling, not
// policy grouping.
func DefaultNodes() []Node {
	return []Node{
		// Leads
		{Name: "list_leads", Category: "leads", Inputs: []string{"status", "limit"}, Outputs: []string{"leads"}},
		{Name: "get_lead", Category: "leads", Inputs: []string{"lead_id"}, Outputs: []string{"lead"}},
		{Name: "create_lead", Category: "leads", Inputs: []string{"name", "company", "email"}, Outputs: []string{"lead"}, Effects: []string{"creates:lead"}},
		{Name: "update_lead", Category: "leads", Dependencies: []string{"get_lead"}, Inputs: []string{"lead_id", "updates"}, Outputs: []string{"lead"}, Effects: []string{"updates:lead"}},
		{Name: "qualify_lead", Category: "leads", Dependencies: []string{"get_lead"}, Inputs: []string{"lead_id"}, Outputs: []string{"lead"}, Effects: []string{"updates:lead"}},
		{Name: "convert_lead", Category: "leads", Dependencies: []string{"qualify_lead", "create_account"}, Inputs: []string{"lead_id"}, Outputs: []string{"account", "lead"}, Effects: []string{"updates:lead", "creates:account"}},
		{Name: "delete_lead", Category: "leads", Dependencies: []string{"get_lead"}, Inputs: []string{"lead_id", "confirmed"}, Effects: []string{"deletes:lead"}},

		// Accounts
		{Name: "list_accounts", Category: "accounts", Inputs: []string{"limit"}, Outputs: []string{"accounts"}},
		{Name: "get_account", Category: "accounts", Inputs: []string{"account_id"}, Outputs: []string{"account"}},
		{Name: "create_account", Category: "accounts", Inputs: []string{"name", "industry"}, Outputs: []string{"account"}, Effects: []string{"creates:account"}},
		{Name: "update_account", Category: "accounts", Dependencies: []string{"get_account"}, Inputs: []string{"account_id", "updates"}, Outputs: []string{"account"}, Effects: []string{"updates:account"}},
		{Name: "delete_account", Category: "accounts", Dependencies: []string{"get_account"}, Inputs: []string{"account_id", "confirmed"}, Effects: []string{"deletes:account"}},

		// Contacts
		{Name: "search_contacts", Category: "contacts", Inputs: []string{"query", "limit"}, Outputs: []string{"contacts"}},
		{Name: "get_contact", Category: "contacts", Inputs: []string{"contact_id"}, Outputs: []string{"contact"}},
		{Name: "create_contact", Category: "contacts", Dependencies: []string{"get_account"}, Inputs: []string{"name", "email", "account_id"}, Outputs: []string{"contact"}, Effects: []string{"creates:contact"}},
		{Name: "update_contact", Category: "contacts", Dependencies: []string{"get_contact"}, Inputs: []string{"contact_id", "updates"}, Outputs: []string{"contact"}, Effects: []string{"updates:contact"}},
		{Name: "delete_contact", Category: "contacts", Dependencies: []string{"get_contact"}, Inputs: []string{"contact_id", "confirmed"}, Effects: []string{"deletes:contact"}},

		// Opportunities
		{Name: "list_opportunities_by_stage", Category: "opportunities", Inputs: []string{"stage", "limit"}, Outputs: []string{"opportunities"}},
		{Name: "get_opportunity", Category: "opportunities", Inputs: []string{"opportunity_id"}, Outputs: []string{"opportunity"}},
		{Name: "create_opportunity", Category: "opportunities", Dependencies: []string{"get_account"}, Inputs: []string{"name", "account_id", "amount"}, Outputs: []string{"opportunity"}, Effects: []string{"creates:opportunity"}},
		{Name: "update_opportunity", Category: "opportunities", Dependencies: []string{"get_opportunity"}, Inputs: []string{"opportunity_id", "updates"}, Outputs: []string{"opportunity"}, Effects: []string{"updates:opportunity"}},
		{Name: "update_opportunity_stage", Category: "opportunities", Dependencies: []string{"get_opportunity"}, Inputs: []string{"opportunity_id", "stage"}, Outputs: []string{"opportunity"}, Effects: []string{"updates:opportunity"}},
		{Name: "delete_opportunity", Category: "opportunities", Dependencies: []string{"get_opportunity"}, Inputs: []string{"opportunity_id", "confirmed"}, Effects: []string{"deletes:opportunity"}},

		// Activities
		{Name: "list_activities", Category: "activities", Inputs: []string{"entity_type", "entity_id", "limit"}, Outputs: []string{"activities"}},
		{Name: "create_activity", Category: "activities", Inputs: []string{"subject", "due_at"}, Outputs: []string{"activity"}, Effects: []string{"creates:activity"}},
		{Name: "update_activity", Category: "activities", Inputs: []string{"activity_id", "updates"}, Outputs: []string{"activity"}, Effects: []string{"updates:activity"}},
		{Name: "complete_activity", Category: "activities", Inputs: []string{"activity_id"}, Outputs: []string{"activity"}, Effects: []string{"updates:activity"}},
		{Name: "delete_activity", Category: "activities", Inputs: []string{"activity_id", "confirmed"}, Effects: []string{"deletes:activity"}},

		// Notes
		{Name: "list_notes", Category: "notes", Inputs: []string{"entity_type", "entity_id"}, Outputs: []string{"notes"}},
		{Name: "create_note", Category: "notes", Inputs: []string{"entity_type", "entity_id", "content"}, Outputs: []string{"note"}, Effects: []string{"creates:note"}},
		{Name: "update_note", Category: "notes", Inputs: []string{"note_id", "updates"}, Outputs: []string{"note"}, Effects: []string{"updates:note"}},
		{Name: "delete_note", Category: "notes", Inputs: []string{"note_id", "confirmed"}, Effects: []string{"deletes:note"}},

		// Business development sources
		{Name: "list_bizdev_sources", Category: "bizdev", Outputs: []string{"sources"}},
		{Name: "create_bizdev_source", Category: "bizdev", Inputs: []string{"name", "channel"}, Outputs: []string{"source"}, Effects: []string{"creates:bizdev"}},
		{Name: "update_bizdev_source", Category: "bizdev", Dependencies: []string{"list_bizdev_sources"}, Inputs: []string{"source_id", "updates"}, Outputs: []string{"source"}, Effects: []string{"updates:bizdev"}},
		{Name: "delete_bizdev_source", Category: "bizdev", Dependencies: []string{"list_bizdev_sources"}, Inputs: []string{"source_id", "confirmed"}, Effects: []string{"deletes:bizdev"}},

		// Analytics
		{Name: "get_sales_snapshot", Category: "analytics", Dependencies: []string{"list_opportunities_by_stage", "list_accounts"}, Outputs: []string{"snapshot"}},
		{Name: "get_dashboard_metrics", Category: "analytics", Dependencies: []string{"get_sales_snapshot", "list_leads", "list_activities"}, Outputs: []string{"dashboard"}},

		// Administration
		{Name: "reassign_owner", Category: "admin", Inputs: []string{"entity_type", "entity_id", "new_owner_id"}, Effects: []string{"updates:ownership"}},
		{Name: "merge_accounts", Category: "admin", Dependencies: []string{"get_account", "update_account", "delete_account"}, Inputs: []string{"primary_account_id", "duplicate_account_id"}, Outputs: []string{"account"}, Effects: []string{"updates:account", "deletes:account"}},
		{Name: "export_tenant_data", Category: "admin", Dependencies: []string{"list_leads", "list_accounts", "search_contacts", "list_opportunities_by_stage"}, Outputs: []string{"export"}},

		// System jobs
		{Name: "recompute_rollups", Category: "system", Effects: []string{"updates:rollups"}},
		{Name: "reindex_search", Category: "system", Effects: []string{"updates:search-index"}},

		// AI assistance
		{Name: "suggest_next_actions", Category: "ai", Dependencies: []string{"get_lead", "list_activities"}, Inputs: []string{"lead_id"}, Outputs: []string{"suggestions"}},
		{Name: "summarize_pipeline", Category: "ai", Dependencies: []string{"list_opportunities_by_stage"}, Outputs: []string{"summary"}},
		{Name: "draft_followup_email", Category: "ai", Dependencies: []string{"get_contact"}, Inputs: []string{"contact_id"}, Outputs: []string{"draft"}},

		// External enrichment
		{Name: "enrich_company", Category: "enrichment", Inputs: []string{"domain"}, Outputs: []string{"company"}, Effects: []string{"external:http"}},
		{Name: "lookup_company_news", Category: "enrichment", Dependencies: []string{"enrich_company"}, Inputs: []string{"domain"}, Outputs: []string{"news"}, Effects: []string{"external:http"}},
	}
}
