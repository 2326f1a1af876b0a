package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"feedbackloop/pkg/feedback"
)

type fakeInvoker struct {
	env  feedback.Envelope
	args []map[string]any
}

func (f *fakeInvoker) Invoke(_ context.Context, args map[string]any) feedback.Envelope {
	f.args = append(f.args, args)
	return f.env
}

func TestListTools_ContainsRequestFeedback(t *testing.T) {
	found := false
	for _, meta := range ListTools() {
		if meta.Name == ToolRequestFeedback {
			found = true
			if meta.InputSchema.Type != "object" {
				t.Errorf("schema type = %q, want object", meta.InputSchema.Type)
			}
		}
	}
	if !found {
		t.Fatalf("%s not registered", ToolRequestFeedback)
	}
}

func TestRegister_PanicsAfterSeal(t *testing.T) {
	Seal()
	defer func() {
		if recover() == nil {
			t.Error("expected panic registering into a sealed registry")
		}
	}()
	Register("late_tool", createRequestFeedbackTool, &ToolMeta{Name: "late_tool"})
}

func TestProvider_GetAndCache(t *testing.T) {
	p := NewProvider(ToolContext{Invoker: &fakeInvoker{}}, DefaultTools)

	first, err := p.Get(ToolRequestFeedback)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := p.Get(ToolRequestFeedback)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first != second {
		t.Error("expected cached tool instance")
	}
}

func TestProvider_GetErrors(t *testing.T) {
	p := NewProvider(ToolContext{Invoker: &fakeInvoker{}}, []string{ToolRequestFeedback, "ghost"})

	if _, err := p.Get("shell"); !errors.Is(err, ErrToolNotAllowed) {
		t.Errorf("expected ErrToolNotAllowed, got %v", err)
	}
	if _, err := p.Get("ghost"); !errors.Is(err, ErrToolNotRegistered) {
		t.Errorf("expected ErrToolNotRegistered, got %v", err)
	}

	noInvoker := NewProvider(ToolContext{}, DefaultTools)
	if _, err := noInvoker.Get(ToolRequestFeedback); err == nil {
		t.Error("expected factory error without an invoker")
	}
}

func TestProvider_Alias(t *testing.T) {
	p := NewProvider(ToolContext{Invoker: &fakeInvoker{}}, DefaultTools)
	p.Alias("interactive_feedback", ToolRequestFeedback)

	metas := p.List()
	if len(metas) != 1 || metas[0].Name != "interactive_feedback" {
		t.Fatalf("List() = %+v, want single interactive_feedback", metas)
	}
	if _, err := p.Get(ToolRequestFeedback); !errors.Is(err, ErrToolNotAllowed) {
		t.Errorf("registered name should be hidden behind alias, got %v", err)
	}
	if _, err := p.Get("interactive_feedback"); err != nil {
		t.Errorf("Get(alias) error = %v", err)
	}
	if doc := p.GenerateToolDocumentation(); !strings.Contains(doc, "**interactive_feedback**") {
		t.Errorf("documentation does not use exposed name:\n%s", doc)
	}
}

func TestProvider_EmptyDocumentation(t *testing.T) {
	p := NewProvider(ToolContext{}, nil)
	if doc := p.GenerateToolDocumentation(); doc != "No tools available" {
		t.Errorf("doc = %q", doc)
	}
}
