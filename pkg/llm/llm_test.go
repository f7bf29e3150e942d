package llm_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/ravi-parthasarathy/aigen/pkg/llm"
)

func TestParseModelID(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"anthropic:claude-sonnet-4-6", "anthropic", "claude-sonnet-4-6", false},
		{"openai:gpt-4o", "openai", "gpt-4o", false},
		{"invalid", "", "", true},
		{":", "", "", true},
		{":model", "", "", true},
		{"provider:", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prov, model, err := llm.ParseModelID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModelID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if prov != tt.wantProvider {
				t.Errorf("provider = %q, want %q", prov, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
		})
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := llm.NewClient("unknown_provider:some-model", "")
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

type stubClient struct{ key string }

func (s stubClient) Complete(context.Context, llm.GenerateRequest) (llm.GenerateResponse, error) {
	return llm.GenerateResponse{Content: []llm.ContentBlock{{Type: llm.ContentTypeText, Text: s.key}}}, nil
}

func TestNewClient_PassesKeyAndModel(t *testing.T) {
	var got llm.ProviderConfig
	llm.RegisterProvider("stubkey", func(cfg llm.ProviderConfig) (llm.Client, error) {
		got = cfg
		return stubClient{key: cfg.APIKey}, nil
	})
	t.Cleanup(func() { llm.RegisterProvider("stubkey", nil) })

	c, err := llm.NewClient("stubkey:tiny", "sk-123")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got.ModelName != "tiny" || got.APIKey != "sk-123" {
		t.Errorf("provider config = %+v", got)
	}
	resp, err := c.Complete(t.Context(), llm.GenerateRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "sk-123" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if !slices.Contains(llm.Providers(), "stubkey") {
		t.Errorf("Providers() = %v, missing stubkey", llm.Providers())
	}
}

func TestGenerateResponse_TextSkipsImages(t *testing.T) {
	resp := llm.GenerateResponse{Content: []llm.ContentBlock{
		{Type: llm.ContentTypeText, Text: "a"},
		{Type: llm.ContentTypeImage, Image: &llm.Image{MediaType: "image/png", Data: "AA=="}},
		{Type: llm.ContentTypeText, Text: "b"},
	}}
	if got := resp.Text(); got != "ab" {
		t.Errorf("Text() = %q, want ab", got)
	}
}

func TestErrorFromStatus(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		code   int
		target any
	}{
		{429, new(*llm.RateLimitError)},
		{401, new(*llm.AuthError)},
		{403, new(*llm.AuthError)},
		{400, new(*llm.ContextLengthError)},
		{503, new(*llm.ServerError)},
		{418, new(*llm.LLMError)},
	}
	for _, tt := range tests {
		err := llm.ErrorFromStatus(tt.code, "msg", cause)
		if !errors.As(err, tt.target) {
			t.Errorf("code %d: got %T", tt.code, err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("code %d: cause not wrapped", tt.code)
		}
	}
}

func TestBestModel(t *testing.T) {
	tests := []struct {
		preferred, fallback, want string
	}{
		{llm.ModelGPT4Turbo, llm.ModelGPT4o, llm.ModelGPT4Turbo},
		{"openai:gpt-unknown", llm.ModelGPT35Turbo, llm.ModelGPT35Turbo},
		{"", "", llm.DefaultModel},
		{"not-a-model-id", "", llm.DefaultModel},
	}
	for _, tt := range tests {
		if got := llm.BestModel(tt.preferred, tt.fallback); got != tt.want {
			t.Errorf("BestModel(%q, %q) = %q, want %q", tt.preferred, tt.fallback, got, tt.want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{"user", "system", "assistant"} {
		if !llm.ValidRole(r) {
			t.Errorf("ValidRole(%q) = false", r)
		}
	}
	for _, r := range []string{"", "tool", "User"} {
		if llm.ValidRole(r) {
			t.Errorf("ValidRole(%q) = true", r)
		}
	}
}

func TestRetryable(t *testing.T) {
	base := func(msg string) llm.LLMError { return llm.LLMError{Message: msg} }
	tests := []struct {
		err      error
		wantTrue bool
	}{
		{&llm.RateLimitError{LLMError: base("rate limit")}, true},
		{&llm.ServerError{LLMError: base("5xx")}, true},
		{&llm.AuthError{LLMError: base("auth")}, false},
		{&llm.ContextLengthError{LLMError: base("ctx")}, false},
		{&llm.ContentFilterError{LLMError: base("filter")}, false},
	}
	for _, tt := range tests {
		got := llm.Retryable(tt.err)
		if got != tt.wantTrue {
			t.Errorf("Retryable(%T) = %v, want %v", tt.err, got, tt.wantTrue)
		}
	}
}
