package dispatch

import (
	"context"
	"sync"

	"github.com/braidhq/engine/internal/core"
)

// maxBatchParallel bounds concurrent dispatches within one batch.
const maxBatchParallel = 5

// BatchCall is one entry of a batch dispatch.
type BatchCall struct {
	Tool string    `json:"tool"`
	Args core.Args `json:"args"`
}

// ExecuteBatch dispatches the calls sequentially or in parallel.
// Results are positional: results[i] always belongs to calls[i].
// Parallel mode runs independent dispatches under a concurrency cap;
// each call still carries its own timeout.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []BatchCall, parallel bool, tenant core.TenantRecord, userID string, token *core.AccessToken) []core.Result {
	results := make([]core.Result, len(calls))

	if !parallel {
		for i, c := range calls {
			results[i] = d.Execute(ctx, c.Tool, c.Args, tenant, userID, token)
		}
		return results
	}

	sem := make(chan struct{}, maxBatchParallel)
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c BatchCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.Execute(ctx, c.Tool, c.Args, tenant, userID, token)
		}(i, c)
	}
	wg.Wait()
	return results
}
