package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const BrowserlessContentURL = "https://chrome.browserless.io/content"

// Scraper returns the visible text of a web page.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (string, error)
}

// PageScraper fetches pages directly, or through a browserless content
// endpoint when Token is set so that script-rendered sites come back complete.
type PageScraper struct {
	Client   *http.Client
	Endpoint string
	Token    string
	MaxChars int
}

func NewPageScraper(token string, timeout time.Duration) *PageScraper {
	return &PageScraper{
		Client:   &http.Client{Timeout: timeout},
		Endpoint: BrowserlessContentURL,
		Token:    token,
		MaxChars: 6000,
	}
}

func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	pageURL = NormalizeURL(pageURL)
	if pageURL == "" {
		return "", errors.New("website is empty")
	}

	req, err := s.request(ctx, pageURL)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errors.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	text, err := ExtractText(resp.Body)
	if err != nil {
		return "", err
	}
	if s.MaxChars > 0 {
		text = truncate(text, s.MaxChars)
	}
	return text, nil
}

func (s *PageScraper) request(ctx context.Context, pageURL string) (*http.Request, error) {
	if s.Token == "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		return req, nil
	}

	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, errors.Wrap(err, "encode browserless request")
	}
	endpoint := s.Endpoint + "?token=" + url.QueryEscape(s.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// ExtractText returns the whitespace-collapsed text of an HTML document
// without scripts and styles.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	doc.Find("script, style, noscript, svg").Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return strings.Join(strings.Fields(sel.Text()), " "), nil
}

// NormalizeURL adds an https scheme to bare domains.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		return "https://" + raw
	}
	return raw
}

// truncate cuts text to at most n bytes without splitting a rune.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
