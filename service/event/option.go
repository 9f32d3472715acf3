package event

import (
	"github.com/zerotoship/flow/service/messaging/memory"
)

type Option func(s *Service)

// WithNewMemoryQueueConfig sets the memory queue configuration factory.
func WithNewMemoryQueueConfig(newQueue func(name string) memory.Config) Option {
	return func(s *Service) {
		s.memNewQueueConfig = newQueue
	}
}
