package coretools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/toolexecutor"
)

const (
	searchEndpoint   = "https://html.duckduckgo.com/html/"
	maxSearchResults = 8
	maxSearchBody    = 2 << 20
)

func webSearchTool(client *http.Client) toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "web_search",
		Description: "Search the web and return result titles with URLs.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     30 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "limit", Type: "integer", Description: "Maximum results", Default: maxSearchResults},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			limit := maxSearchResults
			if raw, ok := args["limit"].(float64); ok && raw > 0 && int(raw) < maxSearchResults {
				limit = int(raw)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				searchEndpoint+"?q="+url.QueryEscape(query), nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ouro-agent)")

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("search request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("search returned status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
			if err != nil {
				return "", fmt.Errorf("failed to read search response: %w", err)
			}

			results := parseSearchResults(string(body), limit)
			if len(results) == 0 {
				return "(no results)", nil
			}
			return strings.Join(results, "\n"), nil
		},
	}
}

// parseSearchResults extracts result links from the HTML results page. The
// markup is stable enough that string scanning beats a full HTML parse here.
func parseSearchResults(page string, limit int) []string {
	var results []string
	rest := page
	for len(results) < limit {
		idx := strings.Index(rest, `class="result__a"`)
		if idx == -1 {
			break
		}
		rest = rest[idx:]

		hrefStart := strings.Index(rest, `href="`)
		if hrefStart == -1 {
			break
		}
		hrefStart += len(`href="`)
		hrefEnd := strings.Index(rest[hrefStart:], `"`)
		if hrefEnd == -1 {
			break
		}
		link := resolveRedirect(html.UnescapeString(rest[hrefStart : hrefStart+hrefEnd]))

		titleStart := strings.Index(rest, ">")
		if titleStart == -1 {
			break
		}
		titleEnd := strings.Index(rest[titleStart:], "</a>")
		if titleEnd == -1 {
			break
		}
		title := strings.TrimSpace(stripTags(rest[titleStart+1 : titleStart+titleEnd]))
		rest = rest[titleStart+titleEnd:]

		if link == "" || title == "" {
			continue
		}
		results = append(results, fmt.Sprintf("- %s\n  %s", html.UnescapeString(title), link))
	}
	return results
}

// resolveRedirect unwraps the uddg redirect parameter when present.
func resolveRedirect(link string) string {
	if !strings.Contains(link, "uddg=") {
		return link
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
