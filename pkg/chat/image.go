package chat

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FallbackMIMEType is used when the file extension is unrecognized.
const FallbackMIMEType = "application/octet-stream"

// EncodedImage is an image file read into memory and base64-encoded.
type EncodedImage struct {
	MediaType string
	Data      string
}

// DataURI renders the image as a data: URI.
func (img EncodedImage) DataURI() string {
	return "data:" + img.MediaType + ";base64," + img.Data
}

// MIMEType infers a MIME type from the path's extension.
func MIMEType(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return FallbackMIMEType
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// LoadImage reads and encodes the image at path. maxBytes <= 0 disables the
// size check. A missing file yields an error matching fs.ErrNotExist.
func LoadImage(path string, maxBytes int64) (EncodedImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("load image: %w", err)
	}
	if info.IsDir() {
		return EncodedImage{}, fmt.Errorf("load image %s: is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return EncodedImage{}, fmt.Errorf("load image %s: %d bytes: %w", path, info.Size(), ErrImageTooLarge)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("load image: %w", err)
	}
	return EncodedImage{
		MediaType: MIMEType(path),
		Data:      base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// ParseDataURI splits a base64 data URI into its media type and payload.
func ParseDataURI(uri string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return "", "", false
	}
	if mediaType == "" {
		mediaType = FallbackMIMEType
	}
	return mediaType, payload, true
}

// ExpandImages expands a glob pattern (doublestar syntax, ** allowed) into a
// sorted list of file paths. A pattern without glob metacharacters is
// returned as is so that a missing file surfaces later as fs.ErrNotExist.
func ExpandImages(pattern string) ([]string, error) {
	if !hasMeta(pattern) {
		return []string{pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("expand %q: no files match", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{`)
}
