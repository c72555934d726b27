// internal/provider/client.go

// Package provider implements the affiliate item API client and the
// normalization of its heterogeneous payloads into canonical records.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the affiliate ItemList API endpoint.
const DefaultEndpoint = "https://api.dmm.com/affiliate/v3/ItemList"

// RawItem is one undecoded product object from the source API. Its
// shape varies across site floors; only the normalizer consumes it.
type RawItem map[string]interface{}

// Query holds the source API request parameters for one run.
type Query struct {
	Site    string `yaml:"site" json:"site"`
	Service string `yaml:"service" json:"service"`
	Floor   string `yaml:"floor" json:"floor"`
	Sort    string `yaml:"sort" json:"sort"`
	Keyword string `yaml:"keyword" json:"keyword"`
	CID     string `yaml:"cid" json:"cid"`
	GteDate string `yaml:"gte_date" json:"gte_date"`
	LteDate string `yaml:"lte_date" json:"lte_date"`
	Article string `yaml:"article" json:"article"`
	Maker   string `yaml:"maker" json:"maker"`
	Author  string `yaml:"author" json:"author"`
	Genre   string `yaml:"genre" json:"genre"`
}

// Page is one decoded result page.
type Page struct {
	Items       []RawItem
	TotalCount  int
	ResultCount int
}

// ClientConfig configures the API client.
type ClientConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	APIID       string        `yaml:"api_id" json:"api_id"`
	AffiliateID string        `yaml:"affiliate_id" json:"affiliate_id"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// Client fetches paginated item lists from the source API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates an API client. APIID and AffiliateID must be set;
// credential presence is validated at startup by the config layer, not
// here.
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// bookFloors maps the accepted non-video service/floor combinations.
// The book floors only work in these exact pairs; anything else returns
// confusing empty result sets, so it is rejected up front.
func resolveServiceFloor(q Query) (site, service, floor string, err error) {
	site = q.Site
	if site == "" {
		site = "FANZA"
	}
	service = strings.ToLower(q.Service)
	floor = strings.ToLower(q.Floor)

	switch {
	case service == "doujin" || floor == "digital_doujin":
		return site, "doujin", "digital_doujin", nil
	case service == "ebook" || floor == "comic":
		if (service == "" || service == "ebook") && (floor == "" || floor == "comic") {
			return site, "ebook", "comic", nil
		}
		return "", "", "", fmt.Errorf(
			"unsupported service/floor combination %q/%q: use ebook/comic or doujin/digital_doujin",
			q.Service, q.Floor)
	case service == "":
		service = "digital"
		fallthrough
	default:
		if floor == "" {
			floor = "videoa"
		}
		return site, service, floor, nil
	}
}

// FetchPage retrieves one page of items. offset is 1-based per the API
// convention; hits is the page size.
func (c *Client) FetchPage(ctx context.Context, q Query, offset, hits int) (*Page, error) {
	site, service, floor, err := resolveServiceFloor(q)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("api_id", c.config.APIID)
	params.Set("affiliate_id", c.config.AffiliateID)
	params.Set("output", "json")
	params.Set("site", site)
	params.Set("service", service)
	params.Set("floor", floor)
	params.Set("hits", strconv.Itoa(hits))
	params.Set("offset", strconv.Itoa(offset))
	sortOrder := q.Sort
	if sortOrder == "" {
		sortOrder = "date"
	}
	params.Set("sort", sortOrder)

	optional := map[string]string{
		"keyword":  q.Keyword,
		"cid":      q.CID,
		"gte_date": q.GteDate,
		"lte_date": q.LteDate,
		"article":  q.Article,
		"maker":    q.Maker,
		"author":   q.Author,
		"genre":    q.Genre,
	}
	for k, v := range optional {
		if v != "" {
			params.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("item list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("item list request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Result struct {
			ResultCount int               `json:"result_count"`
			TotalCount  int               `json:"total_count"`
			Items       []json.RawMessage `json:"items"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode item list response: %w", err)
	}

	page := &Page{
		TotalCount:  envelope.Result.TotalCount,
		ResultCount: envelope.Result.ResultCount,
		Items:       make([]RawItem, 0, len(envelope.Result.Items)),
	}
	for _, rawMsg := range envelope.Result.Items {
		var item RawItem
		if err := json.Unmarshal(rawMsg, &item); err != nil {
			// One malformed item must not abort the page.
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
