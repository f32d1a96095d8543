package utils

import (
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultFileName = "untitled"
	maxFileNameLen  = 255
)

var (
	illegalChars    = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x{80}-\x{9f}]`)
	reservedNames   = regexp.MustCompile(`^\.+$`)
	windowsReserved = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailing = regexp.MustCompile(`[. ]+$`)

	extendedFileName = regexp.MustCompile(`filename\*=([^']*'[^']*')?([^;]*)`)
	quotedFileName   = regexp.MustCompile(`filename="([^"]+)"`)
	bareFileName     = regexp.MustCompile(`filename=([^;"]+)`)
)

// Protocol returns the lowercase scheme of link, or "" when it cannot be parsed.
func Protocol(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// FileNameFromURL returns the last non-empty path segment of link.
func FileNameFromURL(link, fallback string) string {
	u, err := url.Parse(link)
	if err != nil {
		return fallback
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return fallback
}

// FileNameFromTitleParam returns the "title" query parameter of link.
func FileNameFromTitleParam(link, fallback string) string {
	u, err := url.Parse(link)
	if err != nil {
		return fallback
	}
	if title := u.Query().Get("title"); title != "" {
		return title
	}
	return fallback
}

// FileNameFromResponse applies the response headers on top of fallback:
// Content-Disposition first, then a Location header which wins over both.
// Relative locations are resolved against requestURL.
func FileNameFromResponse(header http.Header, requestURL *url.URL, fallback string) string {
	name := fallback

	if cd := header.Get("Content-Disposition"); cd != "" {
		if fromHeader := ContentDispositionFileName(cd); fromHeader != "" {
			name = fromHeader
		}
	}

	if location := header.Get("Location"); location != "" {
		target := location
		if requestURL != nil {
			if ref, err := url.Parse(location); err == nil {
				target = requestURL.ResolveReference(ref).String()
			}
		}
		if fromLocation := FileNameFromURL(target, ""); fromLocation != "" {
			name = fromLocation
		}
	}

	return name
}

// ContentDispositionFileName extracts the file name of a Content-Disposition
// value. The RFC 5987 filename* form is preferred over filename.
func ContentDispositionFileName(value string) string {
	if _, params, err := mime.ParseMediaType(value); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}

	// Loose matching for headers mime rejects, e.g. unquoted spaces.
	if m := extendedFileName.FindStringSubmatch(value); m != nil {
		encoded := strings.Trim(strings.TrimSpace(m[2]), `"`)
		if decoded, err := url.PathUnescape(encoded); err == nil && decoded != "" {
			return decoded
		}
	}
	if m := quotedFileName.FindStringSubmatch(value); m != nil {
		return unescape(m[1])
	}
	if m := bareFileName.FindStringSubmatch(value); m != nil {
		return unescape(strings.TrimSpace(m[1]))
	}
	return ""
}

// SanitizeFileName replaces characters that are illegal in file names on
// common platforms with replacement and caps the name at 255 bytes.
func SanitizeFileName(name, replacement string) string {
	name = illegalChars.ReplaceAllString(name, replacement)
	name = controlChars.ReplaceAllString(name, replacement)
	name = reservedNames.ReplaceAllString(name, replacement)
	name = windowsReserved.ReplaceAllString(name, replacement)
	name = windowsTrailing.ReplaceAllString(name, replacement)
	name = truncateBytes(name, maxFileNameLen)
	if name == "" {
		return DefaultFileName
	}
	return name
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func unescape(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}
