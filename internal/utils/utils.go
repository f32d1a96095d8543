package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxImportSize = 10 * 1024 * 1024

// ExtractLinks reads a bulk import body. HTML documents contribute every
// anchor href, anything else is treated as one link per line. Relative
// links are resolved against base when it is given. Duplicates are dropped
// while keeping the first occurrence order.
func ExtractLinks(r io.Reader, contentType string, base *url.URL) ([]string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxImportSize))
	if err != nil {
		return nil, fmt.Errorf("read import body: %w", err)
	}

	var raw []string
	if isHTML(contentType, body) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				raw = append(raw, href)
			}
		})
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(body))
		for scanner.Scan() {
			raw = append(raw, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan import body: %w", err)
		}
	}

	seen := make(map[string]bool, len(raw))
	links := make([]string, 0, len(raw))
	for _, candidate := range raw {
		link, ok := normalizeLink(strings.TrimSpace(candidate), base)
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}

	slog.Debug("Extracted links", "count", len(links))
	return links, nil
}

func normalizeLink(candidate string, base *url.URL) (string, bool) {
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return "", false
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}
