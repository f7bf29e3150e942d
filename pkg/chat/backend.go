package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ravi-parthasarathy/aigen/pkg/llm"
)

// DefaultMaxTokens caps a reply when neither the call nor the session sets a limit.
const DefaultMaxTokens = 256

// MockReply is what a MockBackend answers when no reply is configured.
const MockReply = "Example"

// ChatOptions are per-call settings for Backend.Complete.
type ChatOptions struct {
	MaxTokens int
}

// Backend is the remote side of a session. Live and mock backends are
// interchangeable: the session state machine does not know which it drives.
type Backend interface {
	Name() string
	// NewBuffer returns a buffer whose image encoding this backend accepts.
	NewBuffer(defaultRole string, maxImageBytes int64) Buffer
	// Complete sends the full transcript and returns the reply text.
	Complete(ctx context.Context, entries []Entry, opts ChatOptions) (string, error)
}

// ─── live ────────────────────────────────────────────────────────────────────

// LiveBackend performs real calls through an llm.Client.
type LiveBackend struct {
	client   llm.Client
	model    string
	provider string
}

// NewLiveBackend wraps client for the model "provider:model-name".
func NewLiveBackend(client llm.Client, modelID string) (*LiveBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("live backend: client must not be nil")
	}
	provider, _, err := llm.ParseModelID(modelID)
	if err != nil {
		return nil, fmt.Errorf("live backend: %w", err)
	}
	return &LiveBackend{client: client, model: modelID, provider: provider}, nil
}

func (b *LiveBackend) Name() string { return b.model }

func (b *LiveBackend) NewBuffer(defaultRole string, maxImageBytes int64) Buffer {
	if b.provider == "openai" {
		return NewImageURLBuffer(defaultRole, maxImageBytes)
	}
	return NewInlineImageBuffer(defaultRole, maxImageBytes)
}

func (b *LiveBackend) Complete(ctx context.Context, entries []Entry, opts ChatOptions) (string, error) {
	msgs, system, err := ToMessages(entries)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Complete(ctx, llm.GenerateRequest{
		Model:     b.model,
		Messages:  msgs,
		System:    system,
		MaxTokens: opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// ToMessages converts history entries into llm messages. Text of system
// entries is collected into the returned system prompt instead.
func ToMessages(entries []Entry) ([]llm.Message, string, error) {
	var (
		msgs   []llm.Message
		system []string
	)
	for i, e := range entries {
		if llm.Role(e.Role) == llm.RoleSystem {
			if t := e.Text(); t != "" {
				system = append(system, t)
			}
			continue
		}
		m := llm.Message{Role: llm.Role(e.Role)}
		for _, f := range e.Content {
			block, err := toBlock(f)
			if err != nil {
				return nil, "", fmt.Errorf("entry %d: %w", i, err)
			}
			m.Content = append(m.Content, block)
		}
		msgs = append(msgs, m)
	}
	return msgs, strings.Join(system, "\n\n"), nil
}

func toBlock(f Fragment) (llm.ContentBlock, error) {
	switch f.Type {
	case TypeText:
		return llm.ContentBlock{Type: llm.ContentTypeText, Text: f.Text}, nil
	case TypeImageURL:
		if f.ImageURL == nil {
			return llm.ContentBlock{}, &TypeError{Value: f, Want: "image_url fragment with a url"}
		}
		mediaType, data, ok := ParseDataURI(f.ImageURL.URL)
		if !ok {
			return llm.ContentBlock{}, fmt.Errorf("image_url: only base64 data URIs are supported")
		}
		return llm.ContentBlock{
			Type:  llm.ContentTypeImage,
			Image: &llm.Image{MediaType: mediaType, Data: data, Detail: f.ImageURL.Detail},
		}, nil
	case TypeImage:
		if f.Source == nil {
			return llm.ContentBlock{}, &TypeError{Value: f, Want: "image fragment with a source"}
		}
		return llm.ContentBlock{
			Type:  llm.ContentTypeImage,
			Image: &llm.Image{MediaType: f.Source.MediaType, Data: f.Source.Data, Detail: f.Detail},
		}, nil
	default:
		return llm.ContentBlock{}, &TypeError{Value: f.Type, Want: "text, image_url or image fragment"}
	}
}

// ─── mock ────────────────────────────────────────────────────────────────────

// MockBackend answers every call with a fixed reply and records what it was sent.
type MockBackend struct {
	Reply string // MockReply when empty
	Err   error  // returned instead of a reply when set

	mu    sync.Mutex
	calls [][]Entry
}

// NewMockBackend returns a mock answering reply.
func NewMockBackend(reply string) *MockBackend {
	return &MockBackend{Reply: reply}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) NewBuffer(defaultRole string, maxImageBytes int64) Buffer {
	return NewImageURLBuffer(defaultRole, maxImageBytes)
}

func (m *MockBackend) Complete(_ context.Context, entries []Entry, _ ChatOptions) (string, error) {
	sent := make([]Entry, len(entries))
	for i, e := range entries {
		sent[i] = e.clone()
	}
	m.mu.Lock()
	m.calls = append(m.calls, sent)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply == "" {
		return MockReply, nil
	}
	return m.Reply, nil
}

// Calls returns the transcripts received so far, oldest first.
func (m *MockBackend) Calls() [][]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Entry, len(m.calls))
	copy(out, m.calls)
	return out
}

var (
	_ Backend = (*LiveBackend)(nil)
	_ Backend = (*MockBackend)(nil)
)
