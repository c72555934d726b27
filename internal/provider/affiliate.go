// internal/provider/affiliate.go
package provider

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AffiliateConfig describes how canonical product URLs are wrapped
// through the affiliate redirector.
type AffiliateConfig struct {
	// ID is the affiliate identifier appended as af_id.
	ID string `yaml:"id" json:"id"`

	// Redirect is the redirector base, e.g. "https://al.dmm.com".
	Redirect string `yaml:"redirect" json:"redirect"`

	// Channel, when set, is appended as the ch parameter on the outer
	// wrap.
	Channel string `yaml:"channel" json:"channel"`
}

// redirectHosts are the redirector domains whose links get unwrapped
// before re-wrapping, so URLs never end up multiply wrapped.
var redirectHosts = []string{"al.dmm.com", "al.fanza.co.jp", "al.dmm.co.jp"}

// maxUnwrapHops bounds unwrap recursion on maliciously nested links.
const maxUnwrapHops = 5

func isRedirectURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, h := range redirectHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// extractInnerURL pulls the lurl parameter out of a redirector link.
func extractInnerURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("lurl")
}

// UnwrapAffiliateURL strips redirector wrapping, following nested lurl
// parameters up to maxUnwrapHops, and returns the innermost target.
func UnwrapAffiliateURL(raw string) string {
	inner := raw
	for hops := 0; hops < maxUnwrapHops && isRedirectURL(inner); hops++ {
		next := extractInnerURL(inner)
		if next == "" {
			break
		}
		inner = next
	}
	return inner
}

// WrapAffiliateURL builds the affiliate link for a product page URL.
// An already-wrapped input is unwrapped first. When the affiliate
// configuration is incomplete the canonical URL is returned untouched;
// a broken link is worse than an unattributed one.
func (c AffiliateConfig) WrapAffiliateURL(base string) string {
	if base == "" {
		return ""
	}
	final := UnwrapAffiliateURL(base)
	if c.ID == "" || c.Redirect == "" {
		return base
	}
	aff := strings.TrimRight(c.Redirect, "/") + "/?lurl=" + url.QueryEscape(final) + "&af_id=" + url.QueryEscape(c.ID)
	if c.Channel != "" {
		aff += "&ch=" + url.QueryEscape(c.Channel)
	}
	return aff
}

// ParseIframeSize parses a "WIDTH_HEIGHT" embed size string and returns
// the dimensions plus the CSS padding-top percentage (H/W*100, two
// decimals) used for responsive embed wrappers. Unparseable input falls
// back to 1280x720.
func ParseIframeSize(s string) (w, h int, ratio string) {
	w, h = 1280, 720
	parts := strings.SplitN(strings.TrimSpace(s), "_", 2)
	if len(parts) == 2 {
		pw, errW := strconv.Atoi(parts[0])
		ph, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && pw > 0 && ph > 0 {
			w, h = pw, ph
		}
	}
	return w, h, fmt.Sprintf("%.2f", float64(h)/float64(w)*100)
}
