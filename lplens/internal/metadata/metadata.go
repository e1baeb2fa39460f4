// CLAUDE:SUMMARY Never-failing HTML metadata fetcher: title/description/og:image by regex, plus heading outline and markdown excerpt.
// Package metadata fetches a page's raw HTML and extracts the fields used
// by the text analysis path when no screenshot is available.
//
// Fetch never returns an error: on any failure the core fields are empty
// and OGImage is nil, so the fallback path always has an input.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"

	"github.com/hazyhaar/lplens/horosafe"
)

// Metadata is what the fallback path knows about a page.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	OGImage     *string  `json:"ogImage"`
	Headings    []string `json:"headings,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
}

// Config configures the fetcher.
type Config struct {
	Timeout     time.Duration // Default: 10s.
	MaxBytes    int64         // Body read cap. Default: 2 MiB.
	UserAgent   string        // Default: LP-Lens-Bot/1.0.
	MaxHeadings int           // Default: 20.
	MaxExcerpt  int           // Excerpt cap in runes. Default: 2000.
	// URLValidator validates URLs before fetch and on every redirect.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "LP-Lens-Bot/1.0"
	}
	if c.MaxHeadings <= 0 {
		c.MaxHeadings = 20
	}
	if c.MaxExcerpt <= 0 {
		c.MaxExcerpt = 2000
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// quoted matches an attribute value closed by the quote that opened it.
const quoted = `(?:"([^"]*)"|'([^']*)')`

var (
	reTitle     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reDescNC    = regexp.MustCompile(`(?is)<meta[^>]+name\s*=\s*["']description["'][^>]*content\s*=\s*` + quoted)
	reDescCN    = regexp.MustCompile(`(?is)<meta[^>]+content\s*=\s*` + quoted + `[^>]*name\s*=\s*["']description["']`)
	reOGImageNC = regexp.MustCompile(`(?is)<meta[^>]+property\s*=\s*["']og:image["'][^>]*content\s*=\s*` + quoted)
	reOGImageCN = regexp.MustCompile(`(?is)<meta[^>]+content\s*=\s*` + quoted + `[^>]*property\s*=\s*["']og:image["']`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// Fetcher retrieves page metadata over HTTP.
type Fetcher struct {
	client *http.Client
	cfg    Config
	strip  *bluemonday.Policy
	md     *converter.Converter
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		cfg:   cfg,
		strip: bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Fetch downloads url and extracts its metadata. Non-2xx responses are
// still parsed: error pages often carry a usable title.
func (f *Fetcher) Fetch(ctx context.Context, url string) Metadata {
	body, contentType, err := f.get(ctx, url)
	if err != nil {
		f.cfg.Logger.Debug("metadata: fetch failed", "url", url, "error", err)
		return Metadata{}
	}
	return f.Extract(body, contentType, url)
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	if err := f.cfg.URLValidator(url); err != nil {
		return nil, "", fmt.Errorf("URL blocked (SSRF): %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.ReadAtMost(resp.Body, f.cfg.MaxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Extract parses an already-downloaded document. pageURL is used to
// resolve relative links in the excerpt and may be empty.
func (f *Fetcher) Extract(raw []byte, contentType, pageURL string) Metadata {
	doc := toUTF8(raw, contentType)

	var m Metadata
	m.Title = f.clean(firstMatch(doc, reTitle))
	m.Description = f.clean(firstMatch(doc, reDescNC, reDescCN))
	if img := f.clean(firstMatch(doc, reOGImageNC, reOGImageCN)); img != "" {
		m.OGImage = &img
	}

	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return m
	}
	d.Find("script,noscript,style,template,svg").Remove()
	m.Headings = f.headings(d)
	m.Excerpt = f.excerpt(d, pageURL)
	return m
}

func (f *Fetcher) headings(d *goquery.Document) []string {
	var out []string
	d.Find("h1,h2,h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapse(s.Text())
		if text != "" {
			out = append(out, goquery.NodeName(s)+": "+text)
		}
		return len(out) < f.cfg.MaxHeadings
	})
	return out
}

func (f *Fetcher) excerpt(d *goquery.Document, pageURL string) string {
	body, err := d.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		return ""
	}
	var md string
	if pageURL != "" {
		md, err = f.md.ConvertString(body, converter.WithDomain(pageURL))
	} else {
		md, err = f.md.ConvertString(body)
	}
	if err != nil {
		return ""
	}
	return truncateRunes(strings.TrimSpace(md), f.cfg.MaxExcerpt)
}

// clean strips markup, decodes entities and collapses whitespace.
func (f *Fetcher) clean(s string) string {
	if s == "" {
		return ""
	}
	return collapse(html.UnescapeString(f.strip.Sanitize(s)))
}

// firstMatch returns the captured value of the match that starts earliest
// in doc across all patterns.
func firstMatch(doc string, res ...*regexp.Regexp) string {
	best, value := -1, ""
	for _, re := range res {
		loc := re.FindStringSubmatchIndex(doc)
		if loc == nil || (best >= 0 && loc[0] >= best) {
			continue
		}
		best, value = loc[0], ""
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] >= 0 {
				value = doc[loc[g]:loc[g+1]]
				break
			}
		}
	}
	return value
}

func toUTF8(raw []byte, contentType string) string {
	enc, name, _ := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" {
		return string(bytes.ToValidUTF8(raw, []byte("�")))
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("�")))
	}
	return string(decoded)
}

func collapse(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}
