// Package workflow loads declarative workflow definitions from YAML
// documents reachable through the abstract file storage layer and keeps a
// refreshable in-process cache of decoded definitions.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/zerotoship/flow/internal/yml"
	"github.com/zerotoship/flow/model"
	"github.com/zerotoship/flow/model/types"
	"github.com/zerotoship/flow/service/dao/workflow/conditions"
	"gopkg.in/yaml.v3"
)

type Service struct {
	fs        afs.Service
	baseURL   string
	fsOptions []storage.Option

	mux   sync.RWMutex
	cache map[string]*model.Workflow
}

// DecodeYAML decodes a workflow from YAML
func (s *Service) DecodeYAML(encoded []byte) (*model.Workflow, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(encoded, &node); err != nil {
		return nil, err
	}
	return s.ParseWorkflow("", &node)
}

// Load loads a workflow from YAML at the specified URL. Decoded definitions
// are cached by URL; use Refresh to force a reload.
func (s *Service) Load(ctx context.Context, URL string) (*model.Workflow, error) {
	if filepath.Ext(URL) == "" {
		URL += ".yaml"
	}
	s.mux.RLock()
	cached, ok := s.cache[URL]
	s.mux.RUnlock()
	if ok {
		return cached, nil
	}
	return s.Refresh(ctx, URL)
}

// Refresh reloads a workflow bypassing the cache and replaces the cached
// entry on success.
func (s *Service) Refresh(ctx context.Context, URL string) (*model.Workflow, error) {
	if filepath.Ext(URL) == "" {
		URL += ".yaml"
	}
	data, err := s.fs.DownloadWithURL(ctx, s.resolveURL(URL), s.fsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode workflow from %s: %w", URL, err)
	}
	workflow, err := s.ParseWorkflow(URL, &node)
	if err != nil {
		return nil, err
	}
	s.mux.Lock()
	s.cache[URL] = workflow
	s.cache[workflow.Name] = workflow
	s.mux.Unlock()
	return workflow, nil
}

// Upsert registers an already decoded definition under its name, replacing
// any previous entry.
func (s *Service) Upsert(workflow *model.Workflow) {
	if workflow == nil || workflow.Name == "" {
		return
	}
	s.mux.Lock()
	s.cache[workflow.Name] = workflow
	s.mux.Unlock()
}

// Lookup returns a cached definition by workflow name, nil when absent.
func (s *Service) Lookup(name string) *model.Workflow {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.cache[name]
}

func (s *Service) resolveURL(URL string) string {
	if s.baseURL == "" || strings.Contains(URL, "://") || strings.HasPrefix(URL, "/") {
		return URL
	}
	return url.Join(s.baseURL, URL)
}

// ParseWorkflow converts a YAML document into a validated workflow model.
func (s *Service) ParseWorkflow(URL string, node *yaml.Node) (*model.Workflow, error) {
	workflow := &model.Workflow{
		Name: getWorkflowNameFromURL(URL),
	}
	if URL != "" {
		workflow.Source = &model.Source{URL: URL}
	}

	if err := s.parseWorkflow((*yml.Node)(node), workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow from %s: %w", URL, err)
	}

	if workflow.Name == "" {
		workflow.Name = generateAnonymousName()
	}

	if issues := workflow.Validate(); len(issues) > 0 {
		return nil, issues[0]
	}
	return workflow, nil
}

// getWorkflowNameFromURL extracts workflow name from URL (file name without extension)
func getWorkflowNameFromURL(URL string) string {
	if URL == "" {
		return ""
	}
	base := filepath.Base(URL)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseWorkflow converts a YAML node to the workflow model
func (s *Service) parseWorkflow(node *yml.Node, workflow *model.Workflow) error {
	rootNode := node
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		rootNode = (*yml.Node)(node.Content[0])
	}
	return rootNode.Pairs(func(key string, valueNode *yml.Node) error {
		switch strings.ToLower(key) {
		case "name":
			if valueNode.Kind == yaml.ScalarNode {
				workflow.Name = valueNode.Value
			}
		case "description":
			if valueNode.Kind == yaml.ScalarNode {
				workflow.Description = valueNode.Value
			}
		case "version":
			if valueNode.Kind == yaml.ScalarNode {
				workflow.Version = valueNode.Value
			}
		case "metadata":
			if valueNode.Kind != yaml.MappingNode {
				return types.NewValidationError("metadata", "should be a mapping")
			}
			metadata, _ := valueNode.Interface().(map[string]interface{})
			workflow.Metadata = metadata
		case "sequence":
			if valueNode.Kind != yaml.SequenceNode {
				return types.NewValidationError("sequence", "should be a sequence")
			}
			return valueNode.Items(func(index int, stepNode *yml.Node) error {
				path := fmt.Sprintf("sequence[%d]", index)
				step, err := s.parseStep(path, stepNode)
				if err != nil {
					return err
				}
				workflow.Sequence = append(workflow.Sequence, step)
				return nil
			})
		}
		return nil
	})
}

// parseStep converts a YAML node to a sequence step
func (s *Service) parseStep(path string, node *yml.Node) (*model.Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, types.NewValidationError(path, "step should be a mapping")
	}

	step := &model.Step{}
	err := node.Pairs(func(key string, valueNode *yml.Node) error {
		switch strings.ToLower(key) {
		case "state":
			if valueNode.Kind == yaml.ScalarNode {
				step.State = valueNode.Value
			}
		case "executor":
			if valueNode.Kind == yaml.ScalarNode {
				step.Executor = valueNode.Value
			}
		case "timeout":
			if valueNode.Kind == yaml.ScalarNode {
				step.Timeout = valueNode.Value
			}
		case "retry":
			retry, err := parseRetry(path, valueNode)
			if err != nil {
				return err
			}
			step.Retry = retry
		case "onerror":
			escalation, err := parseEscalation(path, valueNode)
			if err != nil {
				return err
			}
			step.OnError = escalation
		case "conditions":
			conds, err := parseConditions(path, valueNode)
			if err != nil {
				return err
			}
			step.Conditions = conds
		case "parallel":
			if valueNode.Kind != yaml.SequenceNode {
				return types.NewValidationError(path, "parallel should be a sequence")
			}
			return valueNode.Items(func(index int, subNode *yml.Node) error {
				subPath := fmt.Sprintf("%s.parallel[%d]", path, index)
				sub, err := s.parseStep(subPath, subNode)
				if err != nil {
					return err
				}
				step.Parallel = append(step.Parallel, sub)
				return nil
			})
		case "loop":
			loop, err := s.parseLoop(path, valueNode)
			if err != nil {
				return err
			}
			step.Loop = loop
		case "terminal":
			if valueNode.Kind == yaml.ScalarNode {
				step.Terminal = valueNode.Value
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if step.Kind() == model.KindInvalid {
		return nil, types.NewValidationError(path, "step matches no step shape or more than one")
	}
	return step, nil
}

// parseLoop converts a YAML node to a loop specification
func (s *Service) parseLoop(path string, node *yml.Node) (*model.LoopSpec, error) {
	if node.Kind != yaml.MappingNode {
		return nil, types.NewValidationError(path, "loop should be a mapping")
	}
	loop := &model.LoopSpec{}
	err := node.Pairs(func(key string, valueNode *yml.Node) error {
		switch strings.ToLower(key) {
		case "stateprefix":
			if valueNode.Kind == yaml.ScalarNode {
				loop.StatePrefix = valueNode.Value
			}
		case "maxiterations":
			loop.MaxIterations = valueNode.Int()
		case "steps":
			if valueNode.Kind != yaml.SequenceNode {
				return types.NewValidationError(path, "loop steps should be a sequence")
			}
			return valueNode.Items(func(index int, innerNode *yml.Node) error {
				innerPath := fmt.Sprintf("%s.loop.steps[%d]", path, index)
				inner, err := s.parseStep(innerPath, innerNode)
				if err != nil {
					return err
				}
				loop.Steps = append(loop.Steps, inner)
				return nil
			})
		case "breakconditions":
			conds, err := parseConditions(path, valueNode)
			if err != nil {
				return err
			}
			loop.BreakConditions = conds
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loop, nil
}

// parseConditions accepts both the structured mapping form and the
// shorthand scalar form ("validation.confidence > 0.8").
func parseConditions(path string, node *yml.Node) ([]*model.Condition, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, types.NewValidationError(path, "conditions should be a sequence")
	}
	var result []*model.Condition
	err := node.Items(func(index int, condNode *yml.Node) error {
		condPath := fmt.Sprintf("%s.conditions[%d]", path, index)
		switch condNode.Kind {
		case yaml.ScalarNode:
			condition, err := conditions.Parse([]byte(condNode.Value))
			if err != nil {
				return types.NewValidationError(condPath, "invalid condition %q: %v", condNode.Value, err)
			}
			result = append(result, condition)
			return nil
		case yaml.MappingNode:
			condition := &model.Condition{}
			if err := condNode.Pairs(func(key string, valueNode *yml.Node) error {
				switch strings.ToLower(key) {
				case "field":
					condition.Field = valueNode.Value
				case "operator":
					condition.Operator = valueNode.Value
				case "value":
					condition.Value = normalizeScalar(valueNode.Interface())
				case "onfail":
					escalation, err := parseEscalation(condPath, valueNode)
					if err != nil {
						return err
					}
					condition.OnFail = escalation
				}
				return nil
			}); err != nil {
				return err
			}
			result = append(result, condition)
			return nil
		}
		return types.NewValidationError(condPath, "condition should be a mapping or shorthand string")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// parseEscalation reads an escalation target from either a mapping with an
// escalateTo entry or a bare scalar naming the workflow.
func parseEscalation(path string, node *yml.Node) (*model.Escalation, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return &model.Escalation{Workflow: node.Value}, nil
	case yaml.MappingNode:
		escalation := &model.Escalation{}
		if err := node.Pairs(func(key string, valueNode *yml.Node) error {
			switch strings.ToLower(key) {
			case "escalateto", "workflow":
				escalation.Workflow = valueNode.Value
			}
			return nil
		}); err != nil {
			return nil, err
		}
		if escalation.Workflow == "" {
			return nil, types.NewValidationError(path, "escalation has no target workflow")
		}
		return escalation, nil
	}
	return nil, types.NewValidationError(path, "escalation should be a mapping or workflow name")
}

func parseRetry(path string, node *yml.Node) (*model.Retry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, types.NewValidationError(path, "retry should be a mapping")
	}
	retry := &model.Retry{}
	err := node.Pairs(func(key string, valueNode *yml.Node) error {
		switch strings.ToLower(key) {
		case "type":
			retry.Type = valueNode.Value
		case "maxretries":
			retry.MaxRetries = valueNode.Int()
		case "delay":
			retry.Delay = valueNode.Value
		case "multiplier":
			if multiplier, ok := valueNode.Interface().(float64); ok {
				retry.Multiplier = multiplier
			} else if whole, ok := valueNode.Interface().(int); ok {
				retry.Multiplier = float64(whole)
			}
		case "maxdelay":
			retry.MaxDelay = valueNode.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return retry, nil
}

// normalizeScalar casts integers to float64 so condition values compare the
// same way whether a definition arrived as YAML or JSON.
func normalizeScalar(val interface{}) interface{} {
	switch typed := val.(type) {
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case uint:
		return float64(typed)
	case uint64:
		return float64(typed)
	}
	return val
}

// New creates a new workflow service instance
func New(opts ...Option) *Service {
	ret := &Service{
		fs:    afs.New(),
		cache: make(map[string]*model.Workflow),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}
