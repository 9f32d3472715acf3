// Package printer provides a built-in executor that prints a message from
// the run context to standard output.
package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zerotoship/flow/model/types"
)

const name = "printer"

type Service struct {
	writer io.Writer
}

// New creates a new printer executor writing to standard output.
func New() *Service {
	return &Service{writer: os.Stdout}
}

// NewWithWriter creates a printer executor writing to the supplied writer.
func NewWithWriter(writer io.Writer) *Service {
	return &Service{writer: writer}
}

// Name returns the executor name.
func (s *Service) Name() string {
	return name
}

// Execute prints the snapshot's "message" entry; without one the whole
// snapshot is rendered as JSON.
func (s *Service) Execute(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
	if message, ok := snapshot["message"].(string); ok && message != "" {
		fmt.Fprintln(s.writer, message)
		return &types.Result{Status: types.StatusSuccess}, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(s.writer, string(data))
	return &types.Result{Status: types.StatusSuccess}, nil
}
