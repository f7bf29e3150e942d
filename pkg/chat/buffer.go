package chat

import "github.com/ravi-parthasarathy/aigen/pkg/llm"

// Buffer accumulates the fragments of one in-progress turn.
//
// Flavors differ only in how AddImage encodes an image; the rest of the
// contract is shared.
type Buffer interface {
	Role() string
	SetRole(role string)
	// Content returns a copy of the fragments in insertion order.
	Content() []Fragment
	Empty() bool
	AddText(text string)
	// AddImage reads path and appends an image fragment with detail "high"
	// when detailed is set, "low" otherwise.
	AddImage(path string, detailed bool) error
	// ToEntry renders the buffer as a history entry. A non-empty role
	// overrides the buffer's role; types, when given, restrict the content
	// to fragments of those types ("image" matches both encodings).
	ToEntry(role string, types ...string) Entry
	// FromEntry replaces role and content with those of e.
	FromEntry(e Entry)
	// Clear resets the role to the default and drops all content.
	Clear()
}

// fragments is the state both buffer flavors carry.
type fragments struct {
	defaultRole   string
	role          string
	content       []Fragment
	maxImageBytes int64
}

func newFragments(defaultRole string, maxImageBytes int64) fragments {
	if defaultRole == "" {
		defaultRole = string(llm.DefaultRole)
	}
	return fragments{defaultRole: defaultRole, role: defaultRole, maxImageBytes: maxImageBytes}
}

func (b *fragments) Role() string { return b.role }

func (b *fragments) SetRole(role string) {
	if role != "" {
		b.role = role
	}
}

func (b *fragments) Content() []Fragment { return filterFragments(b.content, nil) }

func (b *fragments) Empty() bool { return len(b.content) == 0 }

func (b *fragments) AddText(text string) {
	b.content = append(b.content, TextFragment(text))
}

func (b *fragments) ToEntry(role string, types ...string) Entry {
	if role == "" {
		role = b.role
	}
	return Entry{Role: role, Content: filterFragments(b.content, types)}
}

func (b *fragments) FromEntry(e Entry) {
	if e.Role != "" {
		b.role = e.Role
	}
	if e.Content != nil {
		b.content = e.clone().Content
	}
}

func (b *fragments) Clear() {
	b.role = b.defaultRole
	b.content = nil
}

func detailFor(detailed bool) string {
	if detailed {
		return DetailHigh
	}
	return DetailLow
}

// ImageURLBuffer encodes images as image_url fragments carrying a data URI,
// the shape OpenAI-style chat APIs expect.
type ImageURLBuffer struct{ fragments }

// NewImageURLBuffer returns an empty buffer whose role is defaultRole
// (llm.DefaultRole when empty).
func NewImageURLBuffer(defaultRole string, maxImageBytes int64) *ImageURLBuffer {
	return &ImageURLBuffer{newFragments(defaultRole, maxImageBytes)}
}

func (b *ImageURLBuffer) AddImage(path string, detailed bool) error {
	img, err := LoadImage(path, b.maxImageBytes)
	if err != nil {
		return err
	}
	b.content = append(b.content, Fragment{
		Type:     TypeImageURL,
		ImageURL: &ImageURL{URL: img.DataURI(), Detail: detailFor(detailed)},
	})
	return nil
}

// InlineImageBuffer encodes images as base64 source blocks, the shape
// Anthropic and Gemini take.
type InlineImageBuffer struct{ fragments }

// NewInlineImageBuffer returns an empty buffer whose role is defaultRole
// (llm.DefaultRole when empty).
func NewInlineImageBuffer(defaultRole string, maxImageBytes int64) *InlineImageBuffer {
	return &InlineImageBuffer{newFragments(defaultRole, maxImageBytes)}
}

func (b *InlineImageBuffer) AddImage(path string, detailed bool) error {
	img, err := LoadImage(path, b.maxImageBytes)
	if err != nil {
		return err
	}
	b.content = append(b.content, Fragment{
		Type:   TypeImage,
		Source: &ImageSource{Type: "base64", MediaType: img.MediaType, Data: img.Data},
		Detail: detailFor(detailed),
	})
	return nil
}

var (
	_ Buffer = (*ImageURLBuffer)(nil)
	_ Buffer = (*InlineImageBuffer)(nil)
)
