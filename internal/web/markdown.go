package web

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownRenderer = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			emoji.Emoji,
		),
		// Raw HTML stays disabled: no html.WithUnsafe().
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	htmlPolicy = bluemonday.UGCPolicy()
)

// renderMarkdownHTML renders a record description for browsers.
func renderMarkdownHTML(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	var b bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &b); err != nil {
		return "<pre>" + htmlPolicy.Sanitize(src) + "</pre>"
	}
	return htmlPolicy.Sanitize(b.String())
}
