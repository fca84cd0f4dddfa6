package coretools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harun/nava/pkg/toolexecutor"
)

// DefaultWikipediaURL is the MediaWiki REST summary endpoint; %s is the language.
const DefaultWikipediaURL = "https://%s.wikipedia.org/api/rest_v1/page/summary/"

type wikiSummary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

var errWikiNotFound = errors.New("page not found")

func wikipediaTool(opts Options) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"wikipedia_search",
		"Search Wikipedia for a topic and return a short summary of the best matching article.",
		[]toolexecutor.Parameter{
			{Name: "query", Type: "string", Description: "The topic to look up.", Required: true},
			{Name: "sentences", Type: "integer", Description: "Number of summary sentences (default 3).", Default: 3},
			{Name: "lang", Type: "string", Description: "Wikipedia language code (default en).", Default: "en"},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return nil, errors.New("query is required")
			}
			lang, _ := params["lang"].(string)
			if strings.TrimSpace(lang) == "" {
				lang = "en"
			}
			sentences := intParam(params["sentences"], 3)

			fmt.Fprintf(toolexecutor.Output(ctx), "Searching %s.wikipedia.org for %q\n", lang, query)
			summary, err := fetchWikiSummary(ctx, opts.HTTPClient, opts.WikipediaURL, lang, query)
			switch {
			case errors.Is(err, errWikiNotFound):
				return nil, fmt.Errorf("Could not find a Wikipedia page for '%s'.", query)
			case err != nil:
				return nil, fmt.Errorf("Wikipedia tool error: %w", err)
			case summary.Type == "disambiguation":
				return nil, fmt.Errorf("'%s' is ambiguous on Wikipedia. Try a more specific query.", query)
			}

			return fmt.Sprintf("## Wikipedia Summary: %s\n\n%s\n\n[Read more on Wikipedia](%s)",
				summary.Title, firstSentences(summary.Extract, sentences), summary.ContentURLs.Desktop.Page), nil
		},
	)
}

func fetchWikiSummary(ctx context.Context, client *http.Client, base, lang, query string) (*wikiSummary, error) {
	title := strings.ReplaceAll(query, " ", "_")
	endpoint := fmt.Sprintf(base, url.PathEscape(lang)) + url.PathEscape(title) + "?redirect=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "nava/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errWikiNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var summary wikiSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if summary.ContentURLs.Desktop.Page == "" {
		summary.ContentURLs.Desktop.Page = "https://" + lang + ".wikipedia.org/wiki/" + url.PathEscape(title)
	}
	return &summary, nil
}

// firstSentences keeps at most n sentences of text.
func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return text
	}
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				count++
				if count == n {
					return text[:i+1]
				}
			}
		}
	}
	return text
}
