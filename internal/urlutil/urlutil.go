// Package urlutil provides URL normalization, classification and
// filename-derivation helpers shared by the crawl and sitemap services.
package urlutil

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize canonicalizes a URL for identity comparison: lowercased scheme
// and host, default port dropped, repeated slashes collapsed, fragment and
// query dropped, trailing slash removed except at the root.
// Invalid URLs fall back to the raw input string.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Drop default ports
	if (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) ||
		(u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	u.Fragment = ""
	u.RawQuery = ""

	p := repeatedSlashes.ReplaceAllString(u.EscapedPath(), "/")
	if p == "" {
		p = "/"
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	u.RawPath = ""
	u.Path = p

	return u.String()
}

// SafeFilename derives a filesystem-safe, path-preserving name from a URL.
// The path is percent-decoded, control characters are stripped, unicode
// letters are preserved and the last segment's extension is removed.
// Invalid URLs yield the literal "page".
func SafeFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "page"
	}

	p := u.Path
	if decoded, derr := url.PathUnescape(p); derr == nil {
		p = decoded
	}

	p = strings.Trim(p, "/")
	if p == "" {
		return "index"
	}

	// Strip the extension of the last segment only
	if ext := path.Ext(p); ext != "" && !strings.Contains(ext, "/") {
		p = strings.TrimSuffix(p, ext)
	}

	var b strings.Builder
	for _, r := range p {
		switch {
		case r < 0x20 || r == 0x7f:
			// Drop control characters
		case r == '/' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	// Percent-decoding can materialize "." and ".." segments; drop them so
	// the derived name always stays below the output directory.
	segments := strings.Split(b.String(), "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}

	name := strings.Join(kept, "/")
	if name == "" {
		return "page"
	}
	return name
}

// FlatFilename is SafeFilename with path separators folded to underscores,
// used by the flat output layout.
func FlatFilename(rawURL string) string {
	return strings.ReplaceAll(SafeFilename(rawURL), "/", "_")
}

// IsSameDomain reports whether the URL's host equals base or is a
// subdomain of it. Invalid URLs are never same-domain.
func IsSameDomain(rawURL, base string) bool {
	if base == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	base = strings.ToLower(base)
	return host == base || strings.HasSuffix(host, "."+base)
}

// RegisteredDomain returns the registered (eTLD+1) domain for a URL's host,
// e.g. "docs.example.co.uk" -> "example.co.uk". Falls back to the bare host
// when the public suffix list has no answer.
func RegisteredDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if domain, derr := publicsuffix.EffectiveTLDPlusOne(host); derr == nil {
		return domain
	}
	return host
}

// MatchGlob matches a URL path against a single glob pattern where `*`
// matches within one path segment and `**` crosses segment boundaries.
func MatchGlob(pattern, urlPath string) bool {
	re, err := globToRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(urlPath)
}

// MatchesPatterns evaluates include/exclude globs against a URL path.
// A leading `!` marks an exclude pattern; excludes beat includes; an empty
// pattern list allows everything. With only exclude patterns present, any
// path not excluded is allowed.
func MatchesPatterns(urlPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	hasInclude := false
	included := false
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.HasPrefix(pat, "!") {
			if MatchGlob(pat[1:], urlPath) {
				return false
			}
			continue
		}
		hasInclude = true
		if MatchGlob(pat, urlPath) {
			included = true
		}
	}

	if !hasInclude {
		return true
	}
	return included
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
