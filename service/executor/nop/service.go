// Package nop provides a built-in executor that does nothing. It is useful
// as a placeholder for states whose real executor is not wired yet.
package nop

import (
	"context"

	"github.com/zerotoship/flow/model/types"
)

const name = "nop"

type Service struct{}

// New creates a new no-op executor.
func New() *Service {
	return &Service{}
}

// Name returns the executor name.
func (s *Service) Name() string {
	return name
}

// Execute performs no operation and returns immediately.
func (s *Service) Execute(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
	return &types.Result{Status: types.StatusSuccess}, nil
}
