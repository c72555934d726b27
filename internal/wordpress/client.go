// internal/wordpress/client.go

// Package wordpress is a minimal WordPress REST API client covering
// the publishing surface: posts, taxonomy terms, and media uploads.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/fanzapress/fanzapress/internal/utils"
)

// externalIDMetaKey is the post meta field carrying the upstream
// content ID; it is the idempotency key for upserts.
const externalIDMetaKey = "external_id"

// Config holds the connection settings for one WordPress site.
type Config struct {
	// BaseURL is the site root, e.g. https://blog.example.com.
	BaseURL string

	// Username and AppPassword authenticate every request via HTTP
	// basic auth with a WordPress application password.
	Username    string
	AppPassword string

	UserAgent string

	// Timeout bounds a single HTTP request. Defaults to 60s; media
	// uploads can be slow.
	Timeout time.Duration

	// MaxRetries is the number of attempts for transient failures.
	// Defaults to 5.
	MaxRetries int

	// RetryBackoff is the linear backoff unit: attempt n sleeps
	// n*RetryBackoff. Defaults to 1500ms.
	RetryBackoff time.Duration

	// Client overrides the HTTP client; used by tests.
	Client *http.Client
}

// Client talks to one WordPress site.
type Client struct {
	cfg     Config
	apiBase string
	host    string
	client  *http.Client
	logger  utils.Logger
	sleep   func(time.Duration)
}

// NewClient validates the configuration and returns a Client. The
// logger may be nil.
func NewClient(cfg Config, logger utils.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wordpress: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("wordpress: invalid base URL %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = utils.NopLogger{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 1500 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		cfg:     cfg,
		apiBase: strings.TrimRight(cfg.BaseURL, "/") + "/wp-json/wp/v2",
		host:    u.Host,
		client:  client,
		logger:  logger,
		sleep:   time.Sleep,
	}, nil
}

// DestinationHost returns the host images and posts end up on.
func (c *Client) DestinationHost() string { return c.host }

// transientStatus reports whether a response status is worth retrying.
func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do performs a request with auth and linear-backoff retry on
// transient statuses and network errors. The returned body is fully
// read and the response closed.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body []byte) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			c.sleep(time.Duration(attempt-1) * c.cfg.RetryBackoff)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("build request: %w", err)
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.AppPassword)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warnf("wordpress %s %s attempt %d: %v", method, rawURL, attempt, err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if transientStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, snippet(respBody))
			c.logger.Warnf("wordpress %s %s attempt %d: %v", method, rawURL, attempt, lastErr)
			continue
		}
		return resp.StatusCode, respBody, nil
	}
	return 0, nil, fmt.Errorf("%s %s: giving up after %d attempts: %w", method, rawURL, c.cfg.MaxRetries, lastErr)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	status, body, err := c.do(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", rawURL, status, snippet(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", rawURL, err)
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

// apiError is the standard WordPress error envelope.
type apiError struct {
	Code string `json:"code"`
	Data struct {
		TermID int `json:"term_id"`
	} `json:"data"`
}

// postDoc is the subset of a post document the client reads back.
type postDoc struct {
	ID   int `json:"id"`
	Meta map[string]interface{} `json:"meta"`
}

// FindPostByExternalID returns the ID of the post whose external_id
// meta equals externalID, or 0 when no such post exists. Search hits
// whose meta does not match exactly are ignored.
func (c *Client) FindPostByExternalID(ctx context.Context, externalID string) (int, error) {
	if externalID == "" {
		return 0, nil
	}
	q := url.Values{}
	q.Set("search", externalID)
	q.Set("status", "publish,future,draft,pending,private")
	q.Set("per_page", "20")
	q.Set("_fields", "id,meta")

	var posts []postDoc
	if err := c.getJSON(ctx, c.apiBase+"/posts?"+q.Encode(), &posts); err != nil {
		return 0, fmt.Errorf("find post %s: %w", externalID, err)
	}
	for _, p := range posts {
		if v, ok := p.Meta[externalIDMetaKey].(string); ok && v == externalID {
			return p.ID, nil
		}
	}
	return 0, nil
}

// taxonomyRoute maps a taxonomy name to its REST collection.
func taxonomyRoute(taxonomy string) string {
	switch taxonomy {
	case "category", "categories":
		return "categories"
	case "post_tag", "tag", "tags":
		return "tags"
	}
	return taxonomy
}

type termDoc struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// EnsureTerms returns term IDs for the given names in the taxonomy,
// creating terms that do not exist yet. Duplicate and empty names are
// skipped.
func (c *Client) EnsureTerms(ctx context.Context, taxonomy string, names []string) ([]int, error) {
	route := c.apiBase + "/" + taxonomyRoute(taxonomy)
	seen := make(map[string]bool, len(names))
	var ids []int
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		id, err := c.ensureTerm(ctx, route, name)
		if err != nil {
			return nil, fmt.Errorf("ensure %s term %q: %w", taxonomy, name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) ensureTerm(ctx context.Context, route, name string) (int, error) {
	q := url.Values{}
	q.Set("search", name)
	q.Set("per_page", "100")
	q.Set("_fields", "id,name")

	var terms []termDoc
	if err := c.getJSON(ctx, route+"?"+q.Encode(), &terms); err != nil {
		return 0, err
	}
	for _, t := range terms {
		if t.Name == name {
			return t.ID, nil
		}
	}

	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return 0, err
	}
	status, body, err := c.do(ctx, http.MethodPost, route, "application/json", payload)
	if err != nil {
		return 0, err
	}
	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		var t termDoc
		if err := json.Unmarshal(body, &t); err != nil {
			return 0, fmt.Errorf("decode created term: %w", err)
		}
		return t.ID, nil
	case status == http.StatusBadRequest:
		// A race or search miss: the API reports term_exists with the
		// existing ID.
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == "term_exists" && apiErr.Data.TermID > 0 {
			return apiErr.Data.TermID, nil
		}
		return 0, fmt.Errorf("create term: status %d: %s", status, snippet(body))
	default:
		return 0, fmt.Errorf("create term: status %d: %s", status, snippet(body))
	}
}

// Post is the payload for creating or updating a post.
type Post struct {
	ExternalID    string
	Title         string
	Content       string
	Excerpt       string
	Status        string
	Date          string
	Categories    []int
	Tags          []int
	FeaturedMedia int
	Meta          map[string]interface{}
}

func (p Post) payload() ([]byte, error) {
	meta := make(map[string]interface{}, len(p.Meta)+1)
	for k, v := range p.Meta {
		meta[k] = v
	}
	meta[externalIDMetaKey] = p.ExternalID

	doc := map[string]interface{}{
		"title":   p.Title,
		"content": p.Content,
		"status":  p.Status,
		"meta":    meta,
	}
	if p.Excerpt != "" {
		doc["excerpt"] = p.Excerpt
	}
	if p.Date != "" {
		doc["date"] = p.Date
	}
	if len(p.Categories) > 0 {
		doc["categories"] = p.Categories
	}
	if len(p.Tags) > 0 {
		doc["tags"] = p.Tags
	}
	if p.FeaturedMedia > 0 {
		doc["featured_media"] = p.FeaturedMedia
	}
	return json.Marshal(doc)
}

// UpsertPost creates the post, or updates the existing post carrying
// the same external_id meta. It returns the post ID and whether a new
// post was created.
func (c *Client) UpsertPost(ctx context.Context, post Post) (int, bool, error) {
	if post.ExternalID == "" {
		return 0, false, fmt.Errorf("upsert post: external ID is required")
	}
	existing, err := c.FindPostByExternalID(ctx, post.ExternalID)
	if err != nil {
		return 0, false, err
	}

	payload, err := post.payload()
	if err != nil {
		return 0, false, fmt.Errorf("encode post: %w", err)
	}

	target := c.apiBase + "/posts"
	if existing > 0 {
		target = fmt.Sprintf("%s/posts/%d", c.apiBase, existing)
	}
	status, body, err := c.do(ctx, http.MethodPost, target, "application/json", payload)
	if err != nil {
		return 0, false, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, false, fmt.Errorf("upsert post %s: status %d: %s", post.ExternalID, status, snippet(body))
	}

	var doc postDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, false, fmt.Errorf("decode post response: %w", err)
	}
	return doc.ID, existing == 0, nil
}

type mediaDoc struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

// UploadImage uploads image bytes to the media library and returns the
// media ID and public URL. Satisfies the mirror's Uploader interface.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data []byte) (int, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	if contentType != "" {
		header["Content-Type"] = []string{contentType}
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return 0, "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, "", fmt.Errorf("build multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("build multipart: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, c.apiBase+"/media", w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return 0, "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return 0, "", fmt.Errorf("upload media %s: status %d: %s", filename, status, snippet(body))
	}

	var doc mediaDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, "", fmt.Errorf("decode media response: %w", err)
	}
	if doc.ID == 0 || doc.SourceURL == "" {
		return 0, "", fmt.Errorf("upload media %s: incomplete response", filename)
	}
	return doc.ID, doc.SourceURL, nil
}

// UploadMediaFromURL downloads an image and uploads it to the media
// library under its original basename. The download is unauthenticated;
// only the upload carries credentials.
func (c *Client) UploadMediaFromURL(ctx context.Context, sourceURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("download %s: status %d", sourceURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read %s: %w", sourceURL, err)
	}

	filename := "upload.jpg"
	if u, err := url.Parse(sourceURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			filename = base
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return c.UploadImage(ctx, filename, contentType, data)
}

// ResolveMediaID finds the media ID for an already-hosted URL by
// searching the library for its basename and matching source_url,
// exactly first, then by path suffix (sites behind CDNs rewrite the
// scheme or host). Returns 0 when nothing matches.
func (c *Client) ResolveMediaID(ctx context.Context, destinationURL string) (int, error) {
	u, err := url.Parse(destinationURL)
	if err != nil {
		return 0, fmt.Errorf("resolve media: parse %q: %w", destinationURL, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return 0, nil
	}
	// Strip the extension: WordPress may have renamed on collision but
	// search matches titles, which drop the extension.
	name := strings.TrimSuffix(base, path.Ext(base))

	q := url.Values{}
	q.Set("search", name)
	q.Set("per_page", "50")
	q.Set("_fields", "id,source_url")

	var docs []mediaDoc
	if err := c.getJSON(ctx, c.apiBase+"/media?"+q.Encode(), &docs); err != nil {
		return 0, fmt.Errorf("resolve media %s: %w", base, err)
	}
	for _, d := range docs {
		if d.SourceURL == destinationURL {
			return d.ID, nil
		}
	}
	for _, d := range docs {
		if strings.HasSuffix(d.SourceURL, "/"+base) {
			return d.ID, nil
		}
	}
	return 0, nil
}
