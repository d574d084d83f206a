package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/braidhq/engine/pkg/sdk"
)

// Demo agent host: creates a lead and walks it to an opportunity
// through a running engine. Set BRAID_API_KEY (and BRAID_URL when not
// local) before running.
func main() {
	client := sdk.NewClient(sdk.Config{
		BaseURL: envOr("BRAID_URL", "http://localhost:8080"),
		APIKey:  os.Getenv("BRAID_API_KEY"),
		User:    sdk.User{ID: "usr-demo", Email: "demo@example.com", Name: "Demo Agent"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("🤖 Braid demo agent starting")

	tools, err := client.ListTools(ctx)
	if err != nil {
		log.Fatalf("❌ Engine unreachable: %v", err)
	}
	fmt.Printf("✅ Connected: %d tools exposed\n", len(tools))

	fmt.Println("\n📇 Creating a lead...")
	exec, err := client.Execute(ctx, "create_lead", map[string]interface{}{
		"name":    "Dana Quinn",
		"email":   "dana@initech.example",
		"company": "Initech",
		"source":  "demo",
	})
	if err != nil {
		log.Fatalf("❌ Request failed: %v", err)
	}
	if !exec.Result.Success {
		log.Fatalf("❌ Engine refused: %s", exec.Result.Error.Message)
	}
	fmt.Println("   " + exec.Summary)

	lead, _ := exec.Result.Data.(map[string]interface{})
	leadID, _ := lead["id"].(string)
	if leadID == "" {
		log.Fatal("❌ create_lead returned no id")
	}

	fmt.Println("\n⛓  Running lead_to_opportunity...")
	outcome, err := client.RunChain(ctx, "lead_to_opportunity", map[string]interface{}{
		"lead_id":          leadID,
		"opportunity_name": "Initech pilot",
		"amount":           25000,
	})
	if err != nil {
		log.Fatalf("❌ Chain request failed: %v", err)
	}
	for _, entry := range outcome.ExecutionLog {
		fmt.Printf("   %-12s %-22s %s\n", entry.ID, entry.Tool, entry.Status)
	}
	if !outcome.Success {
		log.Fatalf("❌ Chain failed at step %q (rolled back: %v)", outcome.FailedStep, outcome.RolledBack)
	}
	fmt.Println("✅ Chain completed at " + outcome.CompletedAt)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
