package chat_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ravi-parthasarathy/aigen/pkg/chat"
	"github.com/ravi-parthasarathy/aigen/pkg/llm"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ─── Buffer ──────────────────────────────────────────────────────────────────

func TestImageURLBuffer_AddImage(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "cat.png", []byte{1, 2, 3})

	b := chat.NewImageURLBuffer("", 0)
	if err := b.AddImage(path, true); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	content := b.Content()
	if len(content) != 1 {
		t.Fatalf("content len = %d, want 1", len(content))
	}
	f := content[0]
	if f.Type != chat.TypeImageURL || f.ImageURL == nil {
		t.Fatalf("fragment = %+v", f)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	if f.ImageURL.URL != want {
		t.Errorf("url = %q, want %q", f.ImageURL.URL, want)
	}
	if f.ImageURL.Detail != chat.DetailHigh {
		t.Errorf("detail = %q, want high", f.ImageURL.Detail)
	}
}

func TestInlineImageBuffer_AddImage(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "cat.jpg", []byte{9})

	b := chat.NewInlineImageBuffer("", 0)
	if err := b.AddImage(path, false); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	f := b.Content()[0]
	if f.Type != chat.TypeImage || f.Source == nil {
		t.Fatalf("fragment = %+v", f)
	}
	if f.Source.MediaType != "image/jpeg" || f.Source.Type != "base64" {
		t.Errorf("source = %+v", f.Source)
	}
	if f.Detail != chat.DetailLow {
		t.Errorf("detail = %q, want low", f.Detail)
	}
}

func TestBuffer_UnknownExtensionFallsBack(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "blob.zzqx", []byte("raw"))

	b := chat.NewImageURLBuffer("", 0)
	if err := b.AddImage(path, false); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	mediaType, _, ok := chat.ParseDataURI(b.Content()[0].ImageURL.URL)
	if !ok {
		t.Fatal("url is not a data URI")
	}
	if mediaType != chat.FallbackMIMEType {
		t.Errorf("media type = %q, want %q", mediaType, chat.FallbackMIMEType)
	}
}

func TestBuffer_AddImageMissing(t *testing.T) {
	t.Parallel()
	b := chat.NewInlineImageBuffer("", 0)
	err := b.AddImage(filepath.Join(t.TempDir(), "missing.png"), false)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
	if !b.Empty() {
		t.Error("buffer should stay empty after a failed AddImage")
	}
}

func TestBuffer_AddImageTooLarge(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "big.png", make([]byte, 64))
	b := chat.NewImageURLBuffer("", 32)
	if err := b.AddImage(path, false); !errors.Is(err, chat.ErrImageTooLarge) {
		t.Errorf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestBuffer_ClearIdempotent(t *testing.T) {
	t.Parallel()
	for _, b := range []chat.Buffer{
		chat.NewImageURLBuffer("system", 0),
		chat.NewInlineImageBuffer("system", 0),
	} {
		b.SetRole("assistant")
		b.AddText("hi")
		for range 3 {
			b.Clear()
			if b.Role() != "system" {
				t.Errorf("%T role after Clear = %q, want system", b, b.Role())
			}
			if !b.Empty() || len(b.Content()) != 0 {
				t.Errorf("%T content after Clear = %v", b, b.Content())
			}
		}
	}
}

func TestBuffer_DefaultRole(t *testing.T) {
	t.Parallel()
	if got := chat.NewImageURLBuffer("", 0).Role(); got != string(llm.DefaultRole) {
		t.Errorf("role = %q, want %q", got, llm.DefaultRole)
	}
}

func TestBuffer_ToEntryFilter(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "a.gif", []byte{0})
	b := chat.NewImageURLBuffer("", 0)
	b.AddText("one")
	if err := b.AddImage(path, false); err != nil {
		t.Fatal(err)
	}
	b.AddText("two")

	all := b.ToEntry("")
	if all.Role != "user" || len(all.Content) != 3 {
		t.Errorf("unfiltered entry = %+v", all)
	}

	texts := b.ToEntry("system", chat.TypeText)
	if texts.Role != "system" {
		t.Errorf("role override = %q, want system", texts.Role)
	}
	if diff := cmp.Diff([]chat.Fragment{chat.TextFragment("one"), chat.TextFragment("two")}, texts.Content); diff != "" {
		t.Errorf("text filter (-want +got):\n%s", diff)
	}

	images := b.ToEntry("", chat.TypeImage)
	if len(images.Content) != 1 || !images.Content[0].IsImage() {
		t.Errorf("image filter = %+v", images.Content)
	}
}

func TestBuffer_FromEntry(t *testing.T) {
	t.Parallel()
	b := chat.NewImageURLBuffer("", 0)
	b.FromEntry(chat.TextEntry("assistant", "restored"))
	if b.Role() != "assistant" || b.ToEntry("").Text() != "restored" {
		t.Errorf("buffer after FromEntry = %+v", b.ToEntry(""))
	}
}

// ─── History ─────────────────────────────────────────────────────────────────

func TestHistory_AddShapes(t *testing.T) {
	t.Parallel()
	h := chat.NewHistory()

	buf := chat.NewImageURLBuffer("", 0)
	buf.AddText("from buffer")
	e := chat.TextEntry("assistant", "entry")

	steps := []any{
		nil,
		buf,
		e,
		&e,
		[]chat.Entry{e},
		map[string]any{"role": "system", "content": []any{map[string]any{"type": "text", "text": "map"}}},
		[]any{e, buf},
	}
	for _, s := range steps {
		if err := h.Add(s); err != nil {
			t.Fatalf("Add(%T): %v", s, err)
		}
	}
	if h.Len() != 7 {
		t.Fatalf("Len = %d, want 7", h.Len())
	}
	data := h.Data()
	if data[0].Text() != "from buffer" || data[4].Role != "system" || data[4].Text() != "map" {
		t.Errorf("unexpected entries: %+v", data)
	}
}

func TestHistory_AddRejectsWholeCall(t *testing.T) {
	t.Parallel()
	h := chat.NewHistory()
	err := h.Add([]any{chat.TextEntry("user", "ok"), 42})
	var te *chat.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TypeError", err)
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d after rejected Add, want 0", h.Len())
	}
	if err := h.Add("plain string"); !errors.As(err, &te) {
		t.Errorf("string item: err = %v, want *TypeError", err)
	}
}

func TestHistory_DataIsCopy(t *testing.T) {
	t.Parallel()
	h := chat.NewHistory()
	_ = h.Add(chat.TextEntry("user", "a"))
	d := h.Data()
	d[0].Content[0].Text = "changed"
	if h.Data()[0].Text() != "a" {
		t.Error("mutating Data() leaked into the history")
	}
}

func TestHistory_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	img := writeFile(t, dir, "pic.webp", []byte{7, 7})

	buf := chat.NewImageURLBuffer("", 0)
	buf.AddText("look")
	if err := buf.AddImage(img, true); err != nil {
		t.Fatal(err)
	}
	inline := chat.NewInlineImageBuffer("system", 0)
	if err := inline.AddImage(img, false); err != nil {
		t.Fatal(err)
	}

	h := chat.NewHistory()
	if err := h.Add([]chat.Buffer{buf, inline}); err != nil {
		t.Fatal(err)
	}
	_ = h.Add(chat.TextEntry("assistant", "a picture"))

	path := filepath.Join(dir, "nested", "dir", "h.yaml")
	if err := h.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := chat.NewHistory()
	_ = fresh.Add(chat.TextEntry("user", "stale"))
	if err := fresh.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(h.Data(), fresh.Data(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_LoadMissingClears(t *testing.T) {
	t.Parallel()
	h := chat.NewHistory()
	_ = h.Add(chat.TextEntry("user", "x"))
	if err := h.Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

// ─── Session ─────────────────────────────────────────────────────────────────

func openMock(t *testing.T, m *chat.MockBackend, opts ...chat.SessionOption) *chat.Session {
	t.Helper()
	opts = append([]chat.SessionOption{chat.WithStore(chat.NewFileStore(t.TempDir()))}, opts...)
	s := chat.Open(m, opts...)
	t.Cleanup(s.Close)
	return s
}

func TestSession_ChatCommitsAndReplies(t *testing.T) {
	t.Parallel()
	m := chat.NewMockBackend("")
	s := openMock(t, m)

	s.AddText("hello")
	reply, err := s.Chat(t.Context(), "", chat.ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != chat.MockReply {
		t.Errorf("reply = %q, want %q", reply, chat.MockReply)
	}

	want := []chat.Entry{
		{Role: "user", Content: []chat.Fragment{{Type: "text", Text: "hello"}}},
		chat.TextEntry("assistant", chat.MockReply),
	}
	if diff := cmp.Diff(want, s.History().Data()); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
	if !s.Buffer().Empty() {
		t.Error("buffer not empty after Chat")
	}

	calls := m.Calls()
	if len(calls) != 1 || len(calls[0]) != 1 {
		t.Fatalf("backend saw %v", calls)
	}
}

func TestSession_ExtraPromptAndRole(t *testing.T) {
	t.Parallel()
	s := openMock(t, chat.NewMockBackend("ok"))

	s.AddText("be brief", chat.AsRole("system"))
	s.Commit()
	if _, err := s.Chat(t.Context(), "question", chat.ChatOptions{}); err != nil {
		t.Fatal(err)
	}
	data := s.History().Data()
	if len(data) != 3 {
		t.Fatalf("history len = %d, want 3", len(data))
	}
	if data[0].Role != "system" || data[1].Role != "user" || data[1].Text() != "question" {
		t.Errorf("history = %+v", data)
	}
}

func TestSession_CommitEmptyIsNoop(t *testing.T) {
	t.Parallel()
	s := openMock(t, chat.NewMockBackend(""))
	s.Commit()
	s.Commit()
	if s.History().Len() != 0 {
		t.Errorf("Len = %d, want 0", s.History().Len())
	}
}

func TestSession_RemoteFailure(t *testing.T) {
	t.Parallel()
	cause := &llm.ServerError{LLMError: llm.LLMError{Code: 503, Message: "down"}}
	m := &chat.MockBackend{Err: cause}
	var logs bytes.Buffer
	s := openMock(t, m, chat.WithSessionLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	_, err := s.Chat(t.Context(), "hello", chat.ChatOptions{})
	var rce *chat.RemoteCallError
	if !errors.As(err, &rce) {
		t.Fatalf("err = %v, want *RemoteCallError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("RemoteCallError does not wrap the backend error")
	}
	if s.History().Len() != 1 {
		t.Errorf("history len = %d, want only the committed turn", s.History().Len())
	}
	if !bytes.Contains(logs.Bytes(), []byte("chat call failed")) {
		t.Errorf("failure not logged: %s", logs.String())
	}
}

type emptyBackend struct{ chat.MockBackend }

func (*emptyBackend) Complete(context.Context, []chat.Entry, chat.ChatOptions) (string, error) {
	return "", nil
}

func TestSession_EmptyReply(t *testing.T) {
	t.Parallel()
	s := chat.Open(&emptyBackend{}, chat.WithStore(chat.NewFileStore(t.TempDir())))
	defer s.Close()
	_, err := s.Chat(t.Context(), "hi", chat.ChatOptions{})
	if !errors.Is(err, chat.ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", err)
	}
}

func TestSession_CacheLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := chat.NewFileStore(dir)
	s := chat.Open(chat.NewMockBackend(""), chat.WithStore(store), chat.WithSessionID("fixed"))

	if s.CacheKey("") != "fixed" || s.CacheKey("named") != "named" {
		t.Errorf("CacheKey = %q / %q", s.CacheKey(""), s.CacheKey("named"))
	}
	if _, err := s.Chat(t.Context(), "hello", chat.ChatOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveHistory(t.Context(), ""); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "fixed.yaml")); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	other := chat.Open(chat.NewMockBackend(""), chat.WithStore(store))
	defer other.Close()
	if err := other.LoadHistory(t.Context(), "fixed"); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if diff := cmp.Diff(s.History().Data(), other.History().Data()); diff != "" {
		t.Errorf("loaded history (-want +got):\n%s", diff)
	}

	s.Close()
	s.Close()
	if _, err := os.Stat(filepath.Join(dir, "fixed.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("cache file survives Close: %v", err)
	}
	if err := other.LoadHistory(t.Context(), "fixed"); !errors.Is(err, chat.ErrNoCache) {
		t.Errorf("err = %v, want ErrNoCache", err)
	}
}

func TestSession_KeptCacheSurvivesClose(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := chat.NewFileStore(dir)
	s := chat.Open(chat.NewMockBackend(""), chat.WithStore(store), chat.WithSessionID("kept"), chat.WithKeptCache())
	if _, err := s.Chat(t.Context(), "hello", chat.ChatOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveHistory(t.Context(), ""); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	s.Close()

	next := chat.Open(chat.NewMockBackend(""), chat.WithStore(store), chat.WithSessionID("kept"), chat.WithKeptCache())
	defer next.Close()
	if err := next.LoadHistory(t.Context(), ""); err != nil {
		t.Fatalf("LoadHistory after Close: %v", err)
	}
	if diff := cmp.Diff(s.History().Data(), next.History().Data()); diff != "" {
		t.Errorf("reloaded history (-want +got):\n%s", diff)
	}
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := filepath.Join(root, "cache")
	outside := writeFile(t, root, "victim.yaml", []byte("- role: user\n  content: keep\n"))
	store := chat.NewFileStore(dir)

	for _, key := range []string{"", ".", "..", "../victim", "a/b", `a\b`, "/etc/passwd"} {
		if err := store.Delete(t.Context(), key); !errors.Is(err, chat.ErrInvalidKey) {
			t.Errorf("Delete(%q) err = %v, want ErrInvalidKey", key, err)
		}
		if err := store.Save(t.Context(), key, nil); !errors.Is(err, chat.ErrInvalidKey) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidKey", key, err)
		}
		if _, err := store.Load(t.Context(), key); !errors.Is(err, chat.ErrInvalidKey) {
			t.Errorf("Load(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside the cache dir was touched: %v", err)
	}
	if err := store.Save(t.Context(), "session-1", nil); err != nil {
		t.Errorf("Save(valid key): %v", err)
	}
}

func TestSession_SetBuffer(t *testing.T) {
	t.Parallel()
	s := openMock(t, chat.NewMockBackend(""), chat.WithDefaultRole("system"))
	b := chat.NewImageURLBuffer("", 0)
	b.AddText("preset")
	s.SetBuffer(b, "")
	if s.Buffer().Role() != "system" {
		t.Errorf("role = %q, want system", s.Buffer().Role())
	}
	s.Commit()
	if s.History().Data()[0].Text() != "preset" {
		t.Error("preset buffer not committed")
	}
}

// ─── Backends ────────────────────────────────────────────────────────────────

type recordingClient struct{ req llm.GenerateRequest }

func (c *recordingClient) Complete(_ context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	c.req = req
	return llm.GenerateResponse{Content: []llm.ContentBlock{{Type: llm.ContentTypeText, Text: "live"}}}, nil
}

func TestLiveBackend_Complete(t *testing.T) {
	t.Parallel()
	rc := &recordingClient{}
	b, err := chat.NewLiveBackend(rc, llm.ModelGPT4o)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.NewBuffer("", 0).(*chat.ImageURLBuffer); !ok {
		t.Error("openai backend should use image_url buffers")
	}

	entries := []chat.Entry{
		chat.TextEntry("system", "rules"),
		{Role: "user", Content: []chat.Fragment{
			chat.TextFragment("see"),
			{Type: chat.TypeImageURL, ImageURL: &chat.ImageURL{URL: "data:image/png;base64,AAAA", Detail: "low"}},
		}},
	}
	reply, err := b.Complete(t.Context(), entries, chat.ChatOptions{MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "live" {
		t.Errorf("reply = %q", reply)
	}
	if rc.req.System != "rules" || rc.req.MaxTokens != 64 {
		t.Errorf("request = %+v", rc.req)
	}
	if len(rc.req.Messages) != 1 || len(rc.req.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", rc.req.Messages)
	}
	img := rc.req.Messages[0].Content[1].Image
	if img == nil || img.MediaType != "image/png" || img.Data != "AAAA" || img.Detail != "low" {
		t.Errorf("image block = %+v", img)
	}
}

func TestLiveBackend_InlineForOtherProviders(t *testing.T) {
	t.Parallel()
	b, err := chat.NewLiveBackend(&recordingClient{}, "anthropic:claude-sonnet-4-6")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.NewBuffer("", 0).(*chat.InlineImageBuffer); !ok {
		t.Error("anthropic backend should use inline image buffers")
	}
	if _, err := chat.NewLiveBackend(&recordingClient{}, "no-provider"); err == nil {
		t.Error("expected error for malformed model id")
	}
}

func TestToMessages_RejectsRemoteURL(t *testing.T) {
	t.Parallel()
	_, _, err := chat.ToMessages([]chat.Entry{{Role: "user", Content: []chat.Fragment{
		{Type: chat.TypeImageURL, ImageURL: &chat.ImageURL{URL: "https://example.com/a.png"}},
	}}})
	if err == nil {
		t.Error("expected error for non-data image URL")
	}
}

// ─── Images ──────────────────────────────────────────────────────────────────

func TestExpandImages(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "b.png", []byte{0})
	writeFile(t, dir, "a.png", []byte{0})
	writeFile(t, dir, "sub/c.png", []byte{0})
	writeFile(t, dir, "note.txt", []byte{0})

	got, err := chat.ExpandImages(filepath.Join(dir, "**", "*.png"))
	if err != nil {
		t.Fatalf("ExpandImages: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.png"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if _, err := chat.ExpandImages(filepath.Join(dir, "*.jpg")); err == nil {
		t.Error("expected error for a glob with no matches")
	}
	literal := filepath.Join(dir, "missing.png")
	if got, _ := chat.ExpandImages(literal); len(got) != 1 || got[0] != literal {
		t.Errorf("literal path expanded to %v", got)
	}
}
