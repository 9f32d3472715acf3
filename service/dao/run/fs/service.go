// Package fs persists run snapshots as JSON documents through the abstract
// file storage layer, so the base path can point at local disk, memory or
// any other supported scheme.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/criteria"
)

// Service implements a filesystem-based run snapshot storage
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ dao.Service[string, execution.Run] = (*Service)(nil)

// Save persists a run snapshot
func (s *Service) Save(ctx context.Context, run *execution.Run) error {
	if run == nil {
		return dao.ErrNilEntity
	}
	if run.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	filePath := s.runPath(run.ID)
	err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to save run to file %s: %w", filePath, err)
	}

	return nil
}

// Load retrieves a run snapshot by ID
func (s *Service) Load(ctx context.Context, id string) (*execution.Run, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.runPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if run exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, dao.ErrNotFound)
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var run execution.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run data: %w", err)
	}
	return &run, nil
}

// Delete removes a run snapshot
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.runPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if run exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("run %s: %w", id, dao.ErrNotFound)
	}

	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete run file: %w", err)
	}
	return nil
}

// List returns all stored run snapshots, optionally filtered by state
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	var runs []*execution.Run
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}

		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("error reading run file %s: %v", object.URL(), err)
			continue
		}

		var run execution.Run
		if err := json.Unmarshal(data, &run); err != nil {
			log.Printf("error unmarshaling run from %s: %v", object.URL(), err)
			continue
		}
		if !criteria.FilterByState(run.State, parameters) {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (s *Service) runPath(id string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", id))
}

// New creates a new filesystem run snapshot storage service
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := afs.New()

	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	basePath = url.Normalize(basePath, file.Scheme)

	return &Service{
		basePath: basePath,
		fs:       fs,
	}, nil
}
