package llm

import "slices"

// OpenAI model IDs known to support image input.
const (
	ModelGPT4o      = "openai:gpt-4o"
	ModelGPT4Turbo  = "openai:gpt-4-turbo"
	ModelGPT35Turbo = "openai:gpt-3.5-turbo"
)

// DefaultModel is used when neither the caller nor the config names one.
const DefaultModel = ModelGPT4o

// DefaultRole is the role given to a fresh prompt buffer.
const DefaultRole = RoleUser

// KnownModels groups the model IDs this module has been exercised against.
// Providers accept other names too; the table only drives BestModel.
var KnownModels = map[string][]string{
	"openai":    {ModelGPT4o, ModelGPT4Turbo, ModelGPT35Turbo},
	"anthropic": {"anthropic:claude-sonnet-4-6", "anthropic:claude-opus-4-1"},
	"gemini":    {"gemini:gemini-1.5-pro", "gemini:gemini-1.5-flash"},
}

// ValidateModel reports whether id is listed in KnownModels.
func ValidateModel(id string) bool {
	provider, _, err := ParseModelID(id)
	if err != nil {
		return false
	}
	return slices.Contains(KnownModels[provider], id)
}

// BestModel returns preferred when it is a known model, otherwise fallback,
// otherwise DefaultModel.
func BestModel(preferred, fallback string) string {
	if preferred != "" && ValidateModel(preferred) {
		return preferred
	}
	if fallback != "" {
		return fallback
	}
	return DefaultModel
}

// ValidRole reports whether r is one of the three chat roles.
func ValidRole(r string) bool {
	switch Role(r) {
	case RoleUser, RoleSystem, RoleAssistant:
		return true
	}
	return false
}
