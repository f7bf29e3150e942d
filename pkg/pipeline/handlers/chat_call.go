package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/aigen/pkg/chat"
	"github.com/ravi-parthasarathy/aigen/pkg/llm"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

const defaultChatHistoryKey = "gptbuffer"

// BackendFactory builds the chat backend for one ChatCall run.
// apiKey may be empty, in which case the provider reads its environment variable.
type BackendFactory func(modelID, apiKey string) (chat.Backend, error)

// LiveBackends creates backends that call the model through pkg/llm.
func LiveBackends(modelID, apiKey string) (chat.Backend, error) {
	client, err := llm.NewClient(modelID, apiKey)
	if err != nil {
		return nil, err
	}
	return chat.NewLiveBackend(client, modelID)
}

// MockBackends returns a factory whose backends answer reply without any
// network call ("Example" when reply is empty).
func MockBackends(reply string) BackendFactory {
	return func(string, string) (chat.Backend, error) {
		return chat.NewMockBackend(reply), nil
	}
}

// ChatCallConfig holds the process-wide settings ChatCall nodes share.
type ChatCallConfig struct {
	DefaultModel  string // used when a node names no known model
	DefaultRole   string
	MaxTokens     int // used when a node sets no max_tokens
	MaxImageBytes int64
	Backends      BackendFactory // LiveBackends when nil
	Store         chat.Store     // session cache; a FileStore in chat.DefaultCacheDir when nil
	Logger        *slog.Logger   // slog.Default when nil
}

// promptItem is one {type, content, detailed} entry of a ChatCall prompt.
type promptItem struct {
	Type     string `mapstructure:"type"`
	Content  any    `mapstructure:"content"`
	Detailed *bool  `mapstructure:"detailed"`
}

// refs returns the content references: a single string or a list of strings.
func (p promptItem) refs(i int) ([]string, error) {
	switch v := p.Content.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, pipeline.Invalid(pipeline.NodeChatCall, fmt.Sprintf("prompt[%d].content", i), "list items must be strings, got %T", x)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return nil, pipeline.Invalid(pipeline.NodeChatCall, fmt.Sprintf("prompt[%d].content", i), "must be a string or a list of strings, got %T", p.Content)
	}
}

// ChatCall adds text and images to a chat session seeded from the context,
// calls the model and stores the reply.
type ChatCall struct {
	APIKey      string       `mapstructure:"api_key"`
	APIKeyAlias string       `mapstructure:"api-key"`
	ChatHistory string       `mapstructure:"chat_history"`
	Output      string       `mapstructure:"output"`
	Mode        string       `mapstructure:"mode"`
	MaxTokens   int          `mapstructure:"max_tokens"`
	Model       string       `mapstructure:"model"`
	SessionID   string       `mapstructure:"session_id"`
	Prompt      []promptItem `mapstructure:"prompt"`

	cfg  ChatCallConfig
	refs [][]string
}

// NewChatCall returns the factory for ChatCall (and its GPTChat alias).
func NewChatCall(cfg ChatCallConfig) pipeline.NodeFactory {
	if cfg.Backends == nil {
		cfg.Backends = LiveBackends
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = chat.DefaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(params map[string]any) (pipeline.Node, error) {
		n := &ChatCall{cfg: cfg}
		if err := decodeParams(pipeline.NodeChatCall, params, n); err != nil {
			return nil, err
		}
		if n.APIKey == "" {
			n.APIKey = n.APIKeyAlias
		}
		if n.ChatHistory == "" {
			n.ChatHistory = defaultChatHistoryKey
		}
		if err := require(pipeline.NodeChatCall, "output", n.Output); err != nil {
			return nil, err
		}
		if n.MaxTokens < 0 {
			return nil, pipeline.Invalid(pipeline.NodeChatCall, "max_tokens", "must not be negative")
		}
		if n.MaxTokens == 0 {
			n.MaxTokens = cfg.MaxTokens
		}
		mode, err := checkMode(pipeline.NodeChatCall, n.Mode)
		if err != nil {
			return nil, err
		}
		n.Mode = mode

		if len(n.Prompt) == 0 {
			return nil, pipeline.Invalid(pipeline.NodeChatCall, "prompt", "is required")
		}
		n.refs = make([][]string, len(n.Prompt))
		for i, item := range n.Prompt {
			if item.Type != chat.TypeText && item.Type != chat.TypeImage {
				return nil, pipeline.Invalid(pipeline.NodeChatCall, fmt.Sprintf("prompt[%d].type", i), "must be %q or %q, got %q", chat.TypeText, chat.TypeImage, item.Type)
			}
			refs, err := item.refs(i)
			if err != nil {
				return nil, err
			}
			n.refs[i] = refs
		}
		return n, nil
	}
}

func (n *ChatCall) Name() string { return pipeline.NodeChatCall }

func (n *ChatCall) Run(ctx context.Context, pctx *pipeline.PipelineContext) error {
	apiKey := ""
	if n.APIKey != "" {
		apiKey = lookupString(pctx, n.APIKey)
	}
	historyKey := pctx.Resolve(n.ChatHistory)
	output := pctx.Resolve(n.Output)
	if output == "" {
		return pipeline.Invalid(pipeline.NodeChatCall, "output", "resolved to an empty name")
	}
	if !pctx.Has(historyKey) {
		pctx.Set(historyKey, []any{})
	}

	model := llm.BestModel(n.Model, n.cfg.DefaultModel)
	if n.Model != "" && model != n.Model {
		n.cfg.Logger.Warn("unknown model, using fallback", "node", pipeline.NodeChatCall, "model", n.Model, "fallback", model)
	}
	backend, err := n.cfg.Backends(model, apiKey)
	if err != nil {
		return fmt.Errorf("ChatCall: backend for %q: %w", model, err)
	}

	opts := []chat.SessionOption{
		chat.WithDefaultRole(n.cfg.DefaultRole),
		chat.WithStore(n.cfg.Store),
		chat.WithMaxTokens(n.MaxTokens),
		chat.WithMaxImageBytes(n.cfg.MaxImageBytes),
		chat.WithSessionLogger(n.cfg.Logger),
	}
	sessionID := ""
	if n.SessionID != "" {
		if sessionID = pctx.Resolve(n.SessionID); sessionID == "" {
			return pipeline.Invalid(pipeline.NodeChatCall, "session_id", "resolved to an empty name")
		}
		opts = append(opts, chat.WithSessionID(sessionID), chat.WithKeptCache())
	}
	sess := chat.Open(backend, opts...)
	defer sess.Close()

	seed, _ := pctx.Get(historyKey)
	if err := sess.History().Add(seed); err != nil {
		return fmt.Errorf("ChatCall: chat_history %q: %w", historyKey, err)
	}
	// A named session picks up its cached history when the context has none.
	if sessionID != "" && sess.History().Len() == 0 {
		if err := sess.LoadHistory(ctx, ""); err != nil && !errors.Is(err, chat.ErrNoCache) {
			return fmt.Errorf("ChatCall: session %q: %w", sessionID, err)
		}
	}

	for i, item := range n.Prompt {
		if err := n.addItem(sess, pctx, item, n.refs[i]); err != nil {
			return fmt.Errorf("ChatCall: prompt[%d]: %w", i, err)
		}
	}

	n.cfg.Logger.Debug("chat call", "model", model, "history", historyKey, "entries", sess.History().Len(), "session", sessionID)
	reply, err := sess.Chat(ctx, "", chat.ChatOptions{MaxTokens: n.MaxTokens})
	if err != nil {
		return fmt.Errorf("ChatCall: %w", err)
	}
	if sessionID != "" {
		if err := sess.SaveHistory(ctx, ""); err != nil {
			return fmt.Errorf("ChatCall: session %q: %w", sessionID, err)
		}
	}

	pctx.Set(historyKey, sess.History().Data())
	return store(pctx, pipeline.NodeChatCall, output, n.Mode, reply)
}

func (n *ChatCall) addItem(sess *chat.Session, pctx *pipeline.PipelineContext, item promptItem, refs []string) error {
	for _, ref := range refs {
		v := lookup(pctx, ref)
		s, ok := v.(string)
		if !ok {
			return &chat.TypeError{Value: v, Want: "string"}
		}
		if item.Type == chat.TypeText {
			sess.AddText(s)
			continue
		}
		paths, err := chat.ExpandImages(s)
		if err != nil {
			return err
		}
		detailed := item.Detailed == nil || *item.Detailed
		for _, p := range paths {
			if err := sess.AddImage(p, detailed); err != nil {
				return err
			}
		}
	}
	return nil
}
