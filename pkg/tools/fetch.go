package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const fetchUserAgent = "skillhost/1.0 (+https://skillhost.local)"

var (
	scriptTagRegex  = regexp.MustCompile(`<script[\s\S]*?</script>`)
	styleTagRegex   = regexp.MustCompile(`<style[\s\S]*?</style>`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// FetchTool performs a single HTTP GET and captures the response body.
// Like every executor invocation it is fallible and timeout-bounded;
// the request is issued at most once, with no automatic retry.
type FetchTool struct {
	maxBytes int
	timeout  time.Duration
	client   *http.Client
}

func NewFetchTool(maxBytes int, timeout time.Duration) *FetchTool {
	if maxBytes <= 0 {
		maxBytes = 50000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FetchTool{
		maxBytes: maxBytes,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *FetchTool) Name() string {
	return "fetch"
}

func (t *FetchTool) Description() string {
	return "Fetch a URL over HTTP and return the response body (JSON pretty-printed, HTML reduced to text)."
}

func (t *FetchTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	urlStr, _ := args["url"].(string)
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return ErrorResult("url is required")
	}

	parsed, err := url.Parse(urlStr)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrorResult(fmt.Sprintf("invalid url %q: must be http(s)", urlStr))
	}
	if err := rejectPrivateHost(parsed.Hostname()); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	reqCtx := ctx
	if reqCtx == nil {
		reqCtx = context.Background()
	}
	reqCtx, cancel := context.WithTimeout(reqCtx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err)).WithError(err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("fetch timed out after %s", t.timeout)).WithError(reqCtx.Err())
		}
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err)).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)+1))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read response: %v", err)).WithError(err)
	}
	truncated := len(body) > t.maxBytes
	if truncated {
		body = body[:t.maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	text, extractor := extractBody(body, contentType)

	summary := fmt.Sprintf("Fetched %s\nStatus: %d\nExtractor: %s\nTruncated: %v\nContent:\n%s",
		urlStr, resp.StatusCode, extractor, truncated, text)

	if resp.StatusCode >= 400 {
		return ErrorResult(summary).WithError(fmt.Errorf("http status %d", resp.StatusCode))
	}
	return UserResult(summary)
}

func extractBody(body []byte, contentType string) (string, string) {
	switch {
	case strings.Contains(contentType, "application/json"):
		var jsonData interface{}
		if err := json.Unmarshal(body, &jsonData); err == nil {
			formatted, _ := json.MarshalIndent(jsonData, "", "  ")
			return string(formatted), "json"
		}
		return string(body), "raw"
	case strings.Contains(contentType, "text/html"),
		strings.HasPrefix(string(body), "<!DOCTYPE"),
		strings.HasPrefix(strings.ToLower(string(body)), "<html"):
		return extractText(string(body)), "text"
	default:
		return string(body), "raw"
	}
}

func extractText(htmlContent string) string {
	result := scriptTagRegex.ReplaceAllLiteralString(htmlContent, "")
	result = styleTagRegex.ReplaceAllLiteralString(result, "")
	result = htmlTagRegex.ReplaceAllLiteralString(result, "")
	result = whitespaceRegex.ReplaceAllLiteralString(result, " ")
	return strings.TrimSpace(result)
}

// rejectPrivateHost blocks requests to loopback/private addresses so a
// skill's fetch template cannot probe the runtime's own network.
func rejectPrivateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("host %q resolves to a private address", host)
		}
	}
	return nil
}
