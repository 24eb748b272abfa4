package model

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxStemRunes bounds the identifier stem so names stay filesystem-safe.
const maxStemRunes = 100

var unsafeIdentChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentRef identifies one downloadable artifact for an entity.
type DocumentRef struct {
	SourceURL       string `json:"source_url,omitempty"`
	LocalIdentifier string `json:"local_identifier"`
	Entity          string `json:"entity"`
}

// NewDocumentRef builds a DocumentRef whose identifier is derived from the URL.
func NewDocumentRef(entity, sourceURL string) DocumentRef {
	return DocumentRef{
		SourceURL:       sourceURL,
		LocalIdentifier: IdentifierFromURL(sourceURL),
		Entity:          entity,
	}
}

// IsLocal reports whether the source is a filesystem path or file:// URL.
func (r DocumentRef) IsLocal() bool {
	return IsLocalSource(r.SourceURL)
}

// IsLocalSource reports whether src points at the local filesystem.
func IsLocalSource(src string) bool {
	if src == "" {
		return false
	}
	u, err := url.Parse(src)
	if err != nil {
		return true
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return true
	case "file":
		return true
	default:
		// Windows drive letters parse as a one-letter scheme.
		return len(u.Scheme) == 1
	}
}

// LocalPath returns the filesystem path for a local source.
func LocalPath(src string) string {
	if strings.HasPrefix(strings.ToLower(src), "file://") {
		if u, err := url.Parse(src); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return src
}

// IdentifierFromURL derives the local identifier for a source URL or path.
// The mapping is deterministic: the same input always yields the same name.
func IdentifierFromURL(src string) string {
	base := sourceBasename(src)

	stem := strings.TrimSuffix(base, path.Ext(base))
	if strings.EqualFold(path.Ext(base), ".pdf") {
		base = stem
	}
	base = foldASCII(base)
	base = unsafeIdentChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")

	if base == "" {
		sum := sha1.Sum([]byte(src))
		return "doc-" + hex.EncodeToString(sum[:])[:12] + ".pdf"
	}
	if utf8.RuneCountInString(base) > maxStemRunes {
		base = string([]rune(base)[:maxStemRunes])
	}
	return base + ".pdf"
}

func sourceBasename(src string) string {
	if IsLocalSource(src) {
		return filepath.Base(LocalPath(src))
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	p := u.EscapedPath()
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	b := path.Base(p)
	if b == "/" || b == "." {
		return ""
	}
	return b
}

// foldASCII strips combining marks so "Årsrapport" becomes "Arsrapport".
func foldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
