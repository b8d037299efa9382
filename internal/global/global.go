package global

import (
	"context"
)

type ContextKey uint

const (
	CancelKey ContextKey = iota
	VersionKey
	SimulateKey
)

func Version(ctx context.Context) string {
	if v, ok := ctx.Value(VersionKey).(string); ok {
		return v
	}
	return "unknown"
}

// Simulated tells whether the hub runs against simulated hardware.
func Simulated(ctx context.Context) bool {
	v, _ := ctx.Value(SimulateKey).(bool)
	return v
}
