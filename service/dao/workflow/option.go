package workflow

import (
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
)

type Option func(*Service)

// WithBaseURL sets the base URL relative workflow locations resolve against.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithFs sets the file storage service.
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithFsOptions sets storage options passed to every download, for example
// an embedded filesystem for embed:// URLs.
func WithFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.fsOptions = options
	}
}
