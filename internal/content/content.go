// internal/content/content.go

// Package content renders the post body for a record, either through
// user-supplied templates or a built-in generator, and derives the
// excerpt and SEO fields from the finished body.
package content

import (
	"fmt"
	"html"
	"html/template"
	"os"
	"strings"
	texttemplate "text/template"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// Hook post-processes a rendered body. Hooks run in registration order
// and a hook error fails the render.
type Hook func(rec *types.Record, body string) (string, error)

// Options configures a Builder. All template paths are optional; with
// none set the built-in generator is used.
type Options struct {
	// TemplatePath is an html/template file rendered with the record
	// as dot. Takes precedence over the built-in generator.
	TemplatePath string

	// MarkupTemplatePath is a text/template file for lightweight
	// markup output (shortcodes, markdown-ish bodies). Takes
	// precedence over TemplatePath.
	MarkupTemplatePath string

	// PageTemplatePath is an html/template wrapping a rendered body
	// into a full page; used by the preview server.
	PageTemplatePath string

	// Prepend and Append are inserted verbatim around every body.
	Prepend string
	Append  string

	Hooks []Hook
}

// Builder renders record bodies.
type Builder struct {
	body    *template.Template
	markup  *texttemplate.Template
	page    *template.Template
	prepend string
	append  string
	hooks   []Hook
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// NewBuilder parses the configured templates. A named template file
// that does not exist or does not parse is a construction error.
func NewBuilder(opts Options) (*Builder, error) {
	b := &Builder{
		prepend: opts.Prepend,
		append:  opts.Append,
		hooks:   opts.Hooks,
	}

	if opts.TemplatePath != "" {
		src, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read body template: %w", err)
		}
		tmpl, err := template.New("body").Funcs(templateFuncs).Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse body template %s: %w", opts.TemplatePath, err)
		}
		b.body = tmpl
	}

	if opts.MarkupTemplatePath != "" {
		src, err := os.ReadFile(opts.MarkupTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read markup template: %w", err)
		}
		tmpl, err := texttemplate.New("markup").Funcs(texttemplate.FuncMap(templateFuncs)).Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse markup template %s: %w", opts.MarkupTemplatePath, err)
		}
		b.markup = tmpl
	}

	if opts.PageTemplatePath != "" {
		src, err := os.ReadFile(opts.PageTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read page template: %w", err)
		}
		tmpl, err := template.New("page").Funcs(templateFuncs).Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse page template %s: %w", opts.PageTemplatePath, err)
		}
		b.page = tmpl
	}

	return b, nil
}

// Build renders the body for a record. When both the markup and the
// body template are configured, both render and their outputs are
// concatenated, markup first. With neither, the built-in generator
// runs.
func (b *Builder) Build(rec *types.Record) (string, error) {
	var parts []string
	if b.markup != nil {
		var sb strings.Builder
		if err := b.markup.Execute(&sb, rec); err != nil {
			return "", fmt.Errorf("render markup template: %w", err)
		}
		parts = append(parts, sb.String())
	}
	if b.body != nil {
		var sb strings.Builder
		if err := b.body.Execute(&sb, rec); err != nil {
			return "", fmt.Errorf("render body template: %w", err)
		}
		parts = append(parts, sb.String())
	}
	if len(parts) == 0 {
		parts = append(parts, FallbackBody(rec))
	}
	body := strings.Join(parts, "\n")

	if b.prepend != "" {
		body = b.prepend + "\n" + body
	}
	if b.append != "" {
		body = body + "\n" + b.append
	}

	for _, hook := range b.hooks {
		out, err := hook(rec, body)
		if err != nil {
			return "", fmt.Errorf("content hook: %w", err)
		}
		body = out
	}
	return body, nil
}

// RenderPage wraps a body into the configured page template. With no
// page template the body is returned as-is.
func (b *Builder) RenderPage(rec *types.Record, body string) (string, error) {
	if b.page == nil {
		return body, nil
	}
	data := struct {
		Record *types.Record
		Body   template.HTML
	}{rec, template.HTML(body)}

	var sb strings.Builder
	if err := b.page.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render page template: %w", err)
	}
	return sb.String(), nil
}

// FallbackBody generates a serviceable post body when no template is
// configured: trailer embed, lead image, a meta table, the gallery,
// and a link to the official page.
func FallbackBody(rec *types.Record) string {
	var sb strings.Builder
	esc := html.EscapeString

	if rec.TrailerEmbed != "" {
		sb.WriteString(`<div class="item-trailer">`)
		sb.WriteString(rec.TrailerEmbed)
		sb.WriteString("</div>\n")
	}

	if rec.PrimaryImage != "" {
		fmt.Fprintf(&sb, `<figure class="item-lead"><img src="%s" alt="%s"></figure>`+"\n",
			esc(rec.PrimaryImage), esc(rec.Title))
	}

	sb.WriteString(`<ul class="item-meta">` + "\n")
	if rec.Actress != "" {
		fmt.Fprintf(&sb, "<li>出演: %s</li>\n", esc(rec.Actress))
	}
	if rec.Maker != "" {
		fmt.Fprintf(&sb, "<li>メーカー: %s</li>\n", esc(rec.Maker))
	}
	if len(rec.Genres) > 0 {
		fmt.Fprintf(&sb, "<li>ジャンル: %s</li>\n", esc(strings.Join(rec.Genres, types.ListDelimiter)))
	}
	if rec.Date != "" {
		fmt.Fprintf(&sb, "<li>配信開始日: %s</li>\n", esc(rec.Date))
	}
	sb.WriteString("</ul>\n")

	if len(rec.GalleryImages) > 0 {
		sb.WriteString(`<div class="item-gallery">` + "\n")
		for _, img := range rec.GalleryImages {
			fmt.Fprintf(&sb, `<figure><img src="%s" alt="%s" loading="lazy"></figure>`+"\n",
				esc(img), esc(rec.Title))
		}
		sb.WriteString("</div>\n")
	}

	if link := rec.AffiliateURLOrCanonical(); link != "" {
		fmt.Fprintf(&sb, `<p class="item-link"><a href="%s" rel="nofollow noopener" target="_blank">公式ページで詳細を見る</a></p>`+"\n",
			esc(link))
	}

	return sb.String()
}
