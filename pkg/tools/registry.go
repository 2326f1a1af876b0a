package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"feedbackloop/pkg/feedback"
)

var (
	// ErrToolNotAllowed is returned by ToolProvider.Get for tools outside the allow-list.
	ErrToolNotAllowed = errors.New("tool not allowed")

	// ErrToolNotRegistered is returned when no factory exists for a tool name.
	ErrToolNotRegistered = errors.New("tool not registered")
)

// Invoker runs one feedback request end to end. *feedback.Handler implements it.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) feedback.Envelope
}

// ToolContext carries the dependencies tool factories draw on.
type ToolContext struct {
	Invoker Invoker
}

// ToolFactory creates a tool instance for a context.
type ToolFactory func(ctx ToolContext) (Tool, error)

// ToolMeta contains metadata about a tool for documentation and discovery.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global tool registry; it is read-only once sealed.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	globalRegistry.tools[name] = toolDescriptor{
		meta:    *meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when the first ToolProvider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools, sorted by name.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ToolProvider creates and caches tool instances for one server.
//
// Exposed names may differ from registered names: an alias maps the name a
// client sees to the registered tool.
type ToolProvider struct {
	ctx      ToolContext
	tools    map[string]Tool
	allowSet map[string]string // exposed name -> registered name
	order    []string
	mu       sync.Mutex
}

// NewProvider creates a ToolProvider for the given context and allowed tools.
// Automatically seals the global registry on first use.
func NewProvider(ctx ToolContext, allowedTools []string) *ToolProvider {
	Seal()

	p := &ToolProvider{
		ctx:      ctx,
		tools:    make(map[string]Tool),
		allowSet: make(map[string]string, len(allowedTools)),
	}
	for _, name := range allowedTools {
		p.allow(name, name)
	}
	return p
}

// Alias exposes the registered tool under another name, replacing its
// registered name in List.
func (p *ToolProvider) Alias(exposed, registered string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if exposed == registered || exposed == "" {
		return
	}
	delete(p.allowSet, registered)
	for i, name := range p.order {
		if name == registered {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.allow(exposed, registered)
}

func (p *ToolProvider) allow(exposed, registered string) {
	if _, ok := p.allowSet[exposed]; !ok {
		p.order = append(p.order, exposed)
	}
	p.allowSet[exposed] = registered
}

// Get retrieves a tool instance by exposed name, creating it lazily if needed.
func (p *ToolProvider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	registered, ok := p.allowSet[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrToolNotAllowed, name)
	}

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[registered]
	globalRegistry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrToolNotRegistered, registered)
	}

	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}

	p.tools[name] = tool
	return tool, nil
}

// List returns metadata for all allowed tools under their exposed names, in
// allow-list order.
func (p *ToolProvider) List() []ToolMeta {
	p.mu.Lock()
	defer p.mu.Unlock()

	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(p.order))
	for _, exposed := range p.order {
		desc, ok := globalRegistry.tools[p.allowSet[exposed]]
		if !ok {
			continue
		}
		meta := desc.meta
		meta.Name = exposed
		result = append(result, meta)
	}
	return result
}

// GenerateToolDocumentation renders markdown documentation for the allowed tools.
func (p *ToolProvider) GenerateToolDocumentation() string {
	metas := p.List()
	if len(metas) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range metas {
		tool, err := p.Get(metas[i].Name)
		if err != nil {
			fmt.Fprintf(&doc, "- **%s** - %s\n", metas[i].Name, metas[i].Description)
			continue
		}
		doc.WriteString(strings.ReplaceAll(tool.PromptDocumentation(), "**"+tool.Name()+"**", "**"+metas[i].Name+"**"))
		doc.WriteString("\n")
	}
	return doc.String()
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	Register(ToolRequestFeedback, createRequestFeedbackTool, &ToolMeta{
		Name:        ToolRequestFeedback,
		Description: requestFeedbackDescription,
		InputSchema: requestFeedbackSchema(),
	})
}
