// Package power implements the power-cycle capability in three variants:
// the out-of-band management controller, the PDU's structured (SNMP)
// interface, and the PDU's interactive CLI. Each variant sequences OFF
// strictly before ON with a mandatory wait between them and never retries
// internally; escalation between variants belongs to the orchestrator.
package power

import (
	"context"
	"time"
)

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
