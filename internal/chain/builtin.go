package chain

import (
	"fmt"

	"github.com/braidhq/engine/internal/core"
)

// Builtins returns the chain definitions the engine ships with.
func Builtins() []*Definition {
	return []*Definition{
		leadToOpportunity(),
		accountWithContact(),
		onboardBizdevSource(),
		bulkUpdateLeads(),
	}
}

// leadToOpportunity qualifies a lead, converts it into an account, and
// opens an opportunity on the result. The opportunity step is optional:
// a converted lead without a deal attached is still a converted lead.
func leadToOpportunity() *Definition {
	return &Definition{
		Name:         "lead_to_opportunity",
		Description:  "Qualify a lead, convert it to an account, and open an opportunity there.",
		RequiredRole: core.RoleUser,
		Steps: []Step{
			{
				ID:       "qualify",
				Tool:     "qualify_lead",
				Required: true,
				Args: func(input core.Args, _ Context) (core.Args, error) {
					leadID, err := requireString(input, "lead_id")
					if err != nil {
						return nil, err
					}
					return core.Args{"lead_id": leadID}, nil
				},
			},
			{
				ID:       "convert",
				Tool:     "convert_lead",
				Required: true,
				Args: func(input core.Args, _ Context) (core.Args, error) {
					leadID, err := requireString(input, "lead_id")
					if err != nil {
						return nil, err
					}
					return core.Args{"lead_id": leadID}, nil
				},
			},
			{
				ID:       "opportunity",
				Tool:     "create_opportunity",
				Required: false,
				Condition: func(ctx Context) bool {
					return ctx.Succeeded("convert")
				},
				Args: func(input core.Args, ctx Context) (core.Args, error) {
					name, err := requireString(input, "opportunity_name")
					if err != nil {
						return nil, err
					}
					accountID, ok := ctx.StringField("convert", "account", "id")
					if !ok {
						return nil, fmt.Errorf("convert result carries no account id")
					}
					args := core.Args{"name": name, "account_id": accountID}
					if amount, exists := input["amount"]; exists {
						args["amount"] = amount
					}
					return args, nil
				},
			},
		},
		Rollback: []RollbackStep{
			{
				Tool: "update_lead",
				Condition: func(ctx Context) bool {
					return ctx.Succeeded("qualify")
				},
				Args: func(ctx Context) core.Args {
					leadID, ok := ctx.StringField("qualify", "id")
					if !ok {
						return nil
					}
					return core.Args{
						"lead_id": leadID,
						"updates": map[string]any{"status": "new"},
					}
				},
			},
		},
	}
}

// accountWithContact creates an account and its primary contact in one
// motion. Both steps are required; the rollback list undoes whatever
// half completed, newest first.
func accountWithContact() *Definition {
	return &Definition{
		Name:         "account_with_contact",
		Description:  "Create an account and attach a primary contact to it.",
		RequiredRole: core.RoleUser,
		Steps: []Step{
			{
				ID:       "account",
				Tool:     "create_account",
				Required: true,
				Args: func(input core.Args, _ Context) (core.Args, error) {
					name, err := requireString(input, "account_name")
					if err != nil {
						return nil, err
					}
					args := core.Args{"name": name}
					if industry, exists := input["industry"]; exists {
						args["industry"] = industry
					}
					return args, nil
				},
			},
			{
				ID:       "contact",
				Tool:     "create_contact",
				Required: true,
				Args: func(input core.Args, ctx Context) (core.Args, error) {
					name, err := requireString(input, "contact_name")
					if err != nil {
						return nil, err
					}
					accountID, ok := ctx.StringField("account", "id")
					if !ok {
						return nil, fmt.Errorf("account step returned no id to attach the contact to")
					}
					args := core.Args{"name": name, "account_id": accountID}
					if email, exists := input["contact_email"]; exists {
						args["email"] = email
					}
					return args, nil
				},
			},
		},
		Rollback: []RollbackStep{
			{
				Tool: "delete_account",
				Condition: func(ctx Context) bool {
					_, ok := ctx.StringField("account", "id")
					return ok
				},
				Args: func(ctx Context) core.Args {
					id, ok := ctx.StringField("account", "id")
					if !ok {
						return nil
					}
					return core.Args{"account_id": id, "confirmed": true}
				},
			},
			{
				Tool: "delete_contact",
				Condition: func(ctx Context) bool {
					_, ok := ctx.StringField("contact", "id")
					return ok
				},
				Args: func(ctx Context) core.Args {
					id, ok := ctx.StringField("contact", "id")
					if !ok {
						return nil
					}
					return core.Args{"contact_id": id, "confirmed": true}
				},
			},
		},
	}
}

// onboardBizdevSource registers a business development source and pins
// an onboarding note to it. Managers own source onboarding.
func onboardBizdevSource() *Definition {
	return &Definition{
		Name:         "onboard_bizdev_source",
		Description:  "Register a bizdev source and record an onboarding note.",
		RequiredRole: core.RoleManager,
		Steps: []Step{
			{
				ID:       "source",
				Tool:     "create_bizdev_source",
				Required: true,
				Args: func(input core.Args, _ Context) (core.Args, error) {
					name, err := requireString(input, "name")
					if err != nil {
						return nil, err
					}
					args := core.Args{"name": name}
					if channel, exists := input["channel"]; exists {
						args["channel"] = channel
					}
					return args, nil
				},
			},
			{
				ID:       "note",
				Tool:     "create_note",
				Required: false,
				Condition: func(ctx Context) bool {
					return ctx.Succeeded("source")
				},
				Args: func(input core.Args, ctx Context) (core.Args, error) {
					sourceID, ok := ctx.StringField("source", "id")
					if !ok {
						return nil, fmt.Errorf("source step returned no id to note against")
					}
					content, _ := input["note"].(string)
					if content == "" {
						name, _ := input["name"].(string)
						content = "Source onboarded: " + name
					}
					return core.Args{
						"entity_type": "bizdev",
						"entity_id":   sourceID,
						"content":     content,
					}, nil
				},
			},
		},
		Rollback: []RollbackStep{
			{
				Tool: "delete_bizdev_source",
				Condition: func(ctx Context) bool {
					_, ok := ctx.StringField("source", "id")
					return ok
				},
				Args: func(ctx Context) core.Args {
					id, ok := ctx.StringField("source", "id")
					if !ok {
						return nil
					}
					return core.Args{"source_id": id, "confirmed": true}
				},
			},
		},
	}
}

// bulkUpdateLeads expands one update_lead step per input record. Steps
// are optional so a single bad record cannot abort the batch; callers
// read per-record outcomes from the execution log.
func bulkUpdateLeads() *Definition {
	return &Definition{
		Name:         "bulk_update_leads",
		Description:  "Apply a list of lead updates, one dispatch per record.",
		RequiredRole: core.RoleUser,
		Dynamic:      true,
		GenerateSteps: func(input core.Args) ([]Step, error) {
			raw, exists := input["updates"]
			if !exists || raw == nil {
				return nil, nil
			}
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("updates must be a list of {lead_id, updates} records")
			}
			steps := make([]Step, 0, len(list))
			for i, item := range list {
				rec, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("updates[%d] is not an object", i)
				}
				leadID, ok := rec["lead_id"].(string)
				if !ok || leadID == "" {
					return nil, fmt.Errorf("updates[%d] is missing lead_id", i)
				}
				fields := rec["updates"]
				steps = append(steps, Step{
					ID:       fmt.Sprintf("update-%d", i+1),
					Tool:     "update_lead",
					Required: false,
					Args: func(core.Args, Context) (core.Args, error) {
						return core.Args{"lead_id": leadID, "updates": fields}, nil
					},
				})
			}
			return steps, nil
		},
	}
}

func requireString(input core.Args, field string) (string, error) {
	s, ok := input[field].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("input is missing %s", field)
	}
	return s, nil
}
