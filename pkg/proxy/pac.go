package proxy

import (
	"context"
	"fmt"
)

// ErrPACEvaluation is returned when a PAC script cannot be compiled or run.
var ErrPACEvaluation = fmt.Errorf("pac evaluation failed")

// PacEvaluator runs FindProxyForURL(url, host) from a PAC script body.
type PacEvaluator interface {
	Evaluate(ctx context.Context, script, targetURL, host string) (string, error)
}

// NewEvaluator returns the backend for engine. Unknown engines fall back to tengo.
func NewEvaluator(engine Engine, host HostFunctions) PacEvaluator {
	switch engine {
	case EngineDirect:
		return DirectEvaluator{}
	default:
		return NewTengoEvaluator(host)
	}
}

// DirectEvaluator ignores the script and never proxies.
type DirectEvaluator struct{}

// Evaluate implements PacEvaluator.
func (DirectEvaluator) Evaluate(context.Context, string, string, string) (string, error) {
	return "DIRECT", nil
}
