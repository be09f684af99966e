package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"abbas/config"
	"abbas/model"
)

// DefaultUserAgent is sent with every page request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"

const maxBodyBytes = 8 << 20

const answerSystemPrompt = "The user provides a question and a website's text. You analyze the text and answer the question."

// WebOptions configures load_url and web_search. Field tags match the
// [options] table of a tool manifest.
type WebOptions struct {
	UserAgent   string   `mapstructure:"user_agent"`
	MaxLength   int      `mapstructure:"max_length"`
	MaxResults  int      `mapstructure:"max_results"`
	BannedSites []string `mapstructure:"banned_sites"`
	SearchURL   string   `mapstructure:"search_url"`
	ResultClass string   `mapstructure:"result_class"`
}

// DefaultWebOptions returns the stock settings.
func DefaultWebOptions() WebOptions {
	return WebOptions{
		UserAgent:  DefaultUserAgent,
		MaxLength:  8000,
		MaxResults: 2,
		BannedSites: []string{
			// user-generated content, usually little useful text
			"facebook.com", "tiktok.com", "spotify.com", "twitter.com", "x.com",
			"quora.com",
		},
		SearchURL:   "https://google.com/search",
		ResultClass: "yuRUbf",
	}
}

// HTTPError reports a non-success response in a form the model is told
// not to retry.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s. Do not repeat this request.", e.StatusCode, http.StatusText(e.StatusCode))
}

// Web fetches pages and asks the model about them.
type Web struct {
	client     *http.Client
	limiter    *rate.Limiter
	summarizer model.InferenceClient
	opts       WebOptions
}

// NewWeb creates the web toolset. A nil limiter means no rate limiting and
// a nil summarizer returns page text as-is.
func NewWeb(client *http.Client, limiter *rate.Limiter, summarizer model.InferenceClient, opts WebOptions) *Web {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	defaults := DefaultWebOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = defaults.MaxLength
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaults.MaxResults
	}
	if opts.BannedSites == nil {
		opts.BannedSites = defaults.BannedSites
	}
	if opts.SearchURL == "" {
		opts.SearchURL = defaults.SearchURL
	}
	if opts.ResultClass == "" {
		opts.ResultClass = defaults.ResultClass
	}
	return &Web{client: client, limiter: limiter, summarizer: summarizer, opts: opts}
}

func (w *Web) get(ctx context.Context, target string) (*html.Node, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", w.opts.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", target)
	}
	defer resp.Body.Close()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] GET %s -> %d", target, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.WithStack(&HTTPError{StatusCode: resp.StatusCode, URL: target})
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}
	return doc, nil
}

// RewriteURL normalises links before fetching: a scheme is added when
// missing, reddit goes through old.reddit.com, youtube is forced to
// English, and fragments are dropped.
func RewriteURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid url")
	}

	domain := strings.Split(u.Hostname(), ".")
	if lastLabels(domain, 2) == "reddit.com" && (len(domain) == 2 || domain[0] != "old") {
		host := "old.reddit.com"
		if port := u.Port(); port != "" {
			host += ":" + port
		}
		u.Host = host
	}
	if lastLabels(domain, 2) == "youtube.com" {
		if strings.HasPrefix(u.Path, "/c/") {
			u.Path = u.Path[2:]
		}
		if u.RawQuery != "" {
			u.RawQuery += "&hl=en"
		} else {
			u.RawQuery = "hl=en"
		}
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func lastLabels(labels []string, n int) string {
	if len(labels) < n {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[len(labels)-n:], ".")
}

// LoadURL answers question about the page at target.
func (w *Web) LoadURL(ctx context.Context, target, question string) (string, error) {
	if question == "" {
		question = "Summarize the content of this page"
	}

	target, err := RewriteURL(target)
	if err != nil {
		return "", err
	}
	text, err := w.pageText(ctx, target)
	if err != nil {
		return "", err
	}

	if n := utf8.RuneCountInString(text); n >= w.opts.MaxLength {
		return "", errors.Errorf("Website too long! (%d/%d)", n, w.opts.MaxLength)
	}
	return w.answer(ctx, strings.ReplaceAll(text, "’", "'"), question)
}

func (w *Web) pageText(ctx context.Context, target string) (string, error) {
	doc, err := w.get(ctx, target)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(target)
	if u != nil && lastLabels(strings.Split(u.Hostname(), "."), 3) == "old.reddit.com" {
		return redditText(doc, w.opts.MaxLength)
	}
	return defaultText(doc), nil
}

// defaultText extracts the main content, falling back to the whole page.
func defaultText(doc *html.Node) string {
	main := findAll(doc, byTag("main"))
	if len(main) == 0 {
		main = findAll(doc, byAttr("role", "main"))
	}
	for _, article := range findAll(doc, byTag("article")) {
		inside := false
		for _, m := range main {
			if isAncestor(m, article) {
				inside = true
				break
			}
		}
		if !inside {
			main = append(main, article)
		}
	}
	if len(main) == 0 {
		main = []*html.Node{doc}
	}

	parts := make([]string, len(main))
	for i, n := range main {
		parts[i] = strippedText(n, "\n")
	}
	return strings.Join(parts, "\n\n")
}

func (w *Web) answer(ctx context.Context, text, question string) (string, error) {
	if w.summarizer == nil {
		return text, nil
	}
	prefix := "<|begin_of_text|>" + turn("system", answerSystemPrompt)
	suffix := "<|start_header_id|>assistant<|end_header_id|>\n\n"
	in := model.PromptInput{
		Prompt:         "Question: " + question + "\n\n" + text,
		PromptTemplate: prefix + model.PromptPlaceholder + suffix,
	}
	tokens, err := w.summarizer.Complete(ctx, in)
	if err != nil {
		return "", errors.Wrap(err, "failed to answer question")
	}
	return strings.Join(tokens, ""), nil
}

func turn(role, text string) string {
	return "<|start_header_id|>" + role + "<|end_header_id|>\n\n" + text + "<|eot_id|>"
}

// Search runs a web search and summarises the top results.
func (w *Web) Search(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(w.opts.SearchURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid search url")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("hl", "en")
	u.RawQuery = q.Encode()

	doc, err := w.get(ctx, u.String())
	if err != nil {
		return "", err
	}

	banned := make(map[string]bool, len(w.opts.BannedSites))
	for _, site := range w.opts.BannedSites {
		banned[site] = true
	}

	var results []string
	for _, page := range searchResults(doc, w.opts.ResultClass) {
		pu, err := url.Parse(page.url)
		if err != nil || banned[lastLabels(strings.Split(pu.Host, "."), 2)] {
			continue
		}
		summary, err := w.LoadURL(ctx, page.url, "")
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Tools] web_search: skipping %s: %v", page.url, err)
			}
			continue
		}
		results = append(results, fmt.Sprintf("Result #%d\n\n%s\n%s\n\n%s",
			len(results)+1, page.title, page.url, strings.ReplaceAll(summary, "\n\n", "\n")))
		if len(results) == w.opts.MaxResults {
			break
		}
	}
	return strings.Join(results, "\n\n\n\n"), nil
}

type searchResult struct {
	url   string
	title string
}

// searchResults lists unique result links; a result is an h3 directly
// inside an anchor within a block of the result class.
func searchResults(doc *html.Node, class string) []searchResult {
	seen := make(map[string]bool)
	var out []searchResult
	for _, block := range findAll(doc, byClass(class)) {
		h3 := find(block, byTag("h3"))
		if h3 == nil || h3.Parent == nil || !byTag("a")(h3.Parent) {
			continue
		}
		u, err := url.Parse(attr(h3.Parent, "href"))
		if err != nil {
			continue
		}
		u.Fragment = ""
		u.RawFragment = ""
		link := u.String()
		if seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, searchResult{url: link, title: textOf(h3)})
	}
	return out
}
