// internal/content/hooks.go

package content

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// builtinHooks is the static registry of body post-processors
// selectable by name from the configuration.
var builtinHooks = map[string]Hook{
	"collapse_blank_lines": collapseBlankLines,
	"force_https":          forceHTTPS,
	"append_cid_comment":   appendCIDComment,
}

// ResolveHooks maps configured hook names onto registry entries. An
// unknown name is a configuration error.
func ResolveHooks(names []string) ([]Hook, error) {
	hooks := make([]Hook, 0, len(names))
	for _, name := range names {
		hook, ok := builtinHooks[name]
		if !ok {
			return nil, fmt.Errorf("unknown content hook %q", name)
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(_ *types.Record, body string) (string, error) {
	return blankLinesRe.ReplaceAllString(body, "\n\n"), nil
}

// forceHTTPS rewrites protocol-relative and plain-http asset
// references; mixed content blocks images on https blogs.
func forceHTTPS(_ *types.Record, body string) (string, error) {
	body = strings.ReplaceAll(body, `src="//`, `src="https://`)
	body = strings.ReplaceAll(body, `src="http://`, `src="https://`)
	return body, nil
}

// appendCIDComment marks the body with the source id, handy when
// inspecting published HTML.
func appendCIDComment(rec *types.Record, body string) (string, error) {
	if rec.ExternalID == "" {
		return body, nil
	}
	return body + fmt.Sprintf("\n<!-- %s -->", rec.ExternalID), nil
}
