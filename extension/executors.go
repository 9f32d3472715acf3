package extension

import (
	"sync"

	"github.com/viant/x"
	"github.com/zerotoship/flow/model/types"
)

// DataTypeIniter lets an executor register the Go types of its outputs when
// it is added to the registry.
type DataTypeIniter interface {
	InitTypes(types *Types)
}

// Executors is the execution-dispatch registry: workflow steps name an
// executor, the router resolves it here.
type Executors struct {
	types     *Types
	executors map[string]types.Executor
	mux       sync.RWMutex
}

func (s *Executors) Types() *Types {
	return s.types
}

// Lookup returns an executor by name, or nil when none is registered.
func (s *Executors) Lookup(name string) types.Executor {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.executors[name]
}

// Names returns the registered executor names.
func (s *Executors) Names() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	names := make([]string, 0, len(s.executors))
	for name := range s.executors {
		names = append(names, name)
	}
	return names
}

// Register adds an executor; a later registration under the same name
// replaces the earlier one.
func (s *Executors) Register(executor types.Executor) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if typer, ok := executor.(DataTypeIniter); ok {
		typer.InitTypes(s.types)
	}
	s.executors[executor.Name()] = executor
}

// NewExecutors creates an executor registry seeded with the supplied
// payload types.
func NewExecutors(goTypes ...*x.Type) *Executors {
	ret := &Executors{
		types:     NewTypes(),
		executors: make(map[string]types.Executor),
	}
	for _, t := range goTypes {
		if t != nil {
			ret.types.Register(t)
		}
	}
	return ret
}
