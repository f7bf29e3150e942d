package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/aigen/pkg/llm"
)

// Session owns one in-progress turn (the buffer) and one committed
// transcript (the history), and moves turns between them and a backend.
//
// A Session is not safe for concurrent use.
type Session struct {
	id            string
	defaultRole   string
	maxTokens     int
	maxImageBytes int64
	backend       Backend
	buffer        Buffer
	history       *History
	store         Store
	logger        *slog.Logger
	keepCache     bool
	closed        bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID fixes the session id (a random uuid by default).
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// WithDefaultRole sets the role a fresh buffer carries.
func WithDefaultRole(role string) SessionOption {
	return func(s *Session) { s.defaultRole = role }
}

// WithStore sets where histories are cached (a FileStore in DefaultCacheDir by default).
func WithStore(st Store) SessionOption {
	return func(s *Session) { s.store = st }
}

// WithMaxTokens sets the reply limit used when a call does not give one.
func WithMaxTokens(n int) SessionOption {
	return func(s *Session) { s.maxTokens = n }
}

// WithMaxImageBytes bounds the size of images added to the buffer.
func WithMaxImageBytes(n int64) SessionOption {
	return func(s *Session) { s.maxImageBytes = n }
}

// WithKeptCache makes Close leave the session's cache entry in place, so a
// later session opened with the same id can LoadHistory it.
func WithKeptCache() SessionOption {
	return func(s *Session) { s.keepCache = true }
}

// WithSessionLogger routes session logging to l.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Open starts a session over backend. Callers must Close it, which removes
// the session's cache entry.
func Open(backend Backend, opts ...SessionOption) *Session {
	s := &Session{
		defaultRole: string(llm.DefaultRole),
		maxTokens:   DefaultMaxTokens,
		backend:     backend,
		history:     NewHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.defaultRole == "" {
		s.defaultRole = string(llm.DefaultRole)
	}
	if s.store == nil {
		s.store = NewFileStore("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.buffer = backend.NewBuffer(s.defaultRole, s.maxImageBytes)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// DefaultRole returns the role a cleared buffer falls back to.
func (s *Session) DefaultRole() string { return s.defaultRole }

// Buffer returns the in-progress turn.
func (s *Session) Buffer() Buffer { return s.buffer }

// History returns the committed transcript.
func (s *Session) History() *History { return s.history }

// AddOption adjusts a single AddText or AddImage call.
type AddOption func(*addConfig)

type addConfig struct{ role string }

// AsRole sets the buffer's role before adding. The role sticks until the
// buffer is cleared.
func AsRole(role string) AddOption {
	return func(c *addConfig) { c.role = role }
}

func (s *Session) applyAdd(opts []AddOption) {
	var c addConfig
	for _, opt := range opts {
		opt(&c)
	}
	s.buffer.SetRole(c.role)
}

// AddText appends a text fragment to the buffer.
func (s *Session) AddText(text string, opts ...AddOption) {
	s.applyAdd(opts)
	s.buffer.AddText(text)
}

// AddImage appends an image fragment to the buffer.
func (s *Session) AddImage(path string, detailed bool, opts ...AddOption) error {
	s.applyAdd(opts)
	return s.buffer.AddImage(path, detailed)
}

// SetBuffer replaces the buffer with b, giving it role (the session default
// when empty). b must use an image encoding the backend accepts.
func (s *Session) SetBuffer(b Buffer, role string) {
	if role == "" {
		role = s.defaultRole
	}
	b.SetRole(role)
	s.buffer = b
}

// Commit moves a non-empty buffer into the history and clears it.
// It is a no-op on an empty buffer.
func (s *Session) Commit() {
	if s.buffer.Empty() {
		return
	}
	// Buffers always normalize.
	_ = s.history.Add(s.buffer)
	s.buffer.Clear()
}

// Chat adds extra (when non-empty) as text, commits the buffer, sends the
// whole history to the backend and appends the reply as an assistant entry.
//
// On failure the history holds the committed turn but no reply, and the
// error is a *RemoteCallError.
func (s *Session) Chat(ctx context.Context, extra string, opts ChatOptions) (string, error) {
	if extra != "" {
		s.AddText(extra)
	}
	s.Commit()

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = s.maxTokens
	}

	reply, err := s.backend.Complete(ctx, s.history.Data(), opts)
	if err != nil {
		s.logger.Error("chat call failed",
			"session", s.id, "backend", s.backend.Name(),
			"retryable", llm.Retryable(err), "err", err)
		return "", &RemoteCallError{Backend: s.backend.Name(), Err: err}
	}
	if reply == "" {
		return "", &RemoteCallError{Backend: s.backend.Name(), Err: ErrEmptyReply}
	}

	_ = s.history.Add(TextEntry(string(llm.RoleAssistant), reply))
	return reply, nil
}

// CacheKey returns name, or the session id when name is empty.
func (s *Session) CacheKey(name string) string {
	if name == "" {
		return s.id
	}
	return name
}

// LoadHistory replaces the history with the cached one.
func (s *Session) LoadHistory(ctx context.Context, name string) error {
	entries, err := s.store.Load(ctx, s.CacheKey(name))
	s.history.Clear()
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	return s.history.Add(entries)
}

// SaveHistory caches the history.
func (s *Session) SaveHistory(ctx context.Context, name string) error {
	if err := s.store.Save(ctx, s.CacheKey(name), s.history.Data()); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}

// DeleteCache removes the cached history. Failures are logged, not returned.
func (s *Session) DeleteCache(ctx context.Context, name string) {
	key := s.CacheKey(name)
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNoCache) {
		s.logger.Warn("delete chat cache", "key", key, "err", err)
		return
	}
	s.logger.Debug("chat cache deleted", "key", key)
}

// Close removes the session's own cache entry unless the session was opened
// WithKeptCache. Calling it again does nothing.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.keepCache {
		return
	}
	s.DeleteCache(context.Background(), "")
}
