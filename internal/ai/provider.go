package ai

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a completion for a conversation. Implementations honor
// ctx cancellation and deadlines; the caller decides the timeout budget.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// NewProvider selects a backend from the engine string (e.g. "pollinations",
// "g4f:gpt-oss-120b").
func NewProvider(engine string) Provider {
	switch {
	case engine == "pollinations", engine == "":
		return NewPollinationsProvider()
	case engine == "g4f" || strings.HasPrefix(engine, "g4f:"):
		return NewG4FProvider(engine)
	default:
		panic(fmt.Sprintf("unsupported AI_PROVIDER: %s", engine))
	}
}
