// Package chat holds the conversational state a chat node drives: the prompt
// buffer for the turn being built, the committed history, and the session
// that moves turns between them and a backend.
package chat

import "strings"

// Fragment types. TypeImageURL and TypeImage are the two wire encodings of an
// image; TypeImage also serves as the filter name matching either encoding.
const (
	TypeText     = "text"
	TypeImageURL = "image_url"
	TypeImage    = "image"
)

// Detail levels for image fragments.
const (
	DetailLow  = "low"
	DetailHigh = "high"
)

// ImageURL is the payload of an image_url fragment. URL is a data URI.
type ImageURL struct {
	URL    string `yaml:"url" json:"url" mapstructure:"url"`
	Detail string `yaml:"detail,omitempty" json:"detail,omitempty" mapstructure:"detail"`
}

// ImageSource is the payload of an inline image fragment.
type ImageSource struct {
	Type      string `yaml:"type" json:"type" mapstructure:"type"` // always "base64"
	MediaType string `yaml:"media_type" json:"media_type" mapstructure:"media_type"`
	Data      string `yaml:"data" json:"data" mapstructure:"data"`
}

// Fragment is one typed content unit within a turn.
type Fragment struct {
	Type     string       `yaml:"type" json:"type" mapstructure:"type"`
	Text     string       `yaml:"text,omitempty" json:"text,omitempty" mapstructure:"text"`
	ImageURL *ImageURL    `yaml:"image_url,omitempty" json:"image_url,omitempty" mapstructure:"image_url"`
	Source   *ImageSource `yaml:"source,omitempty" json:"source,omitempty" mapstructure:"source"`
	Detail   string       `yaml:"detail,omitempty" json:"detail,omitempty" mapstructure:"detail"`
}

// TextFragment builds a text fragment.
func TextFragment(text string) Fragment {
	return Fragment{Type: TypeText, Text: text}
}

// IsImage reports whether f carries an image in either encoding.
func (f Fragment) IsImage() bool {
	return f.Type == TypeImageURL || f.Type == TypeImage
}

// Matches reports whether f passes a type filter entry.
func (f Fragment) Matches(filter string) bool {
	if filter == TypeImage {
		return f.IsImage()
	}
	return f.Type == filter
}

func (f Fragment) clone() Fragment {
	if f.ImageURL != nil {
		u := *f.ImageURL
		f.ImageURL = &u
	}
	if f.Source != nil {
		s := *f.Source
		f.Source = &s
	}
	return f
}

// Entry is one committed turn: a role and its content.
type Entry struct {
	Role    string     `yaml:"role" json:"role" mapstructure:"role"`
	Content []Fragment `yaml:"content" json:"content" mapstructure:"content"`
}

// TextEntry builds a single-fragment text entry.
func TextEntry(role, text string) Entry {
	return Entry{Role: role, Content: []Fragment{TextFragment(text)}}
}

// Text concatenates the entry's text fragments.
func (e Entry) Text() string {
	var sb strings.Builder
	for _, f := range e.Content {
		if f.Type == TypeText {
			sb.WriteString(f.Text)
		}
	}
	return sb.String()
}

func (e Entry) clone() Entry {
	out := Entry{Role: e.Role}
	if e.Content != nil {
		out.Content = make([]Fragment, len(e.Content))
		for i, f := range e.Content {
			out.Content[i] = f.clone()
		}
	}
	return out
}

func filterFragments(in []Fragment, types []string) []Fragment {
	out := make([]Fragment, 0, len(in))
	for _, f := range in {
		if len(types) == 0 {
			out = append(out, f.clone())
			continue
		}
		for _, t := range types {
			if f.Matches(t) {
				out = append(out, f.clone())
				break
			}
		}
	}
	return out
}
