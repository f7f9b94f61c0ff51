package portfolio

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/cyberinferno/folioserve/rendercache"
)

const (
	statusLine  = "HTTP/1.1 200 OK\r\n"
	contentType = "text/html; charset=UTF-8"
)

var page = template.Must(template.New("page").Parse(
	`<!DOCTYPE html><html>` +
		`<head><title>{{.Title}}</title><style>{{.Style}}</style></head>` +
		`<body><h1>{{.Heading}}</h1>` +
		`{{range .Projects}}<a href="{{.Href}}" target="_blank">` +
		`<h2>{{.Title}}</h2><p>{{.Desc}}</p><img src="/img/{{.Title}}.png" alt="_">` +
		`</a>{{end}}` +
		`</body></html>`))

type pageData struct {
	Title    string
	Heading  string
	Style    template.CSS
	Projects []Project
}

// Render returns the complete response for s: status line, Content-Type and
// Content-Length headers, blank line, HTML body. It is a pure function of s.
func Render(s Site) ([]byte, error) {
	var body bytes.Buffer
	err := page.Execute(&body, pageData{
		Title:    s.Title,
		Heading:  s.Heading,
		Style:    template.CSS(s.Style),
		Projects: s.Projects,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	var res bytes.Buffer
	res.Grow(body.Len() + 128)
	res.WriteString(statusLine)
	res.WriteString("Content-Type: " + contentType + "\r\n")
	res.WriteString("Content-Length: " + strconv.Itoa(body.Len()) + "\r\n")
	res.WriteString("\r\n")
	res.Write(body.Bytes())

	return res.Bytes(), nil
}

// Build renders s through cache, keyed by its digest, so identical sites are
// rendered once per cache.
//
// Parameters:
//   - ctx: Context for the cache backend
//   - cache: Where rendered responses are kept
//   - s: The site to render
//   - ttl: Lifetime of a new cache entry; 0 means no expiry
//
// Returns:
//   - The response buffer, or the render/cache error
func Build(ctx context.Context, cache rendercache.Cache, s Site, ttl time.Duration) ([]byte, error) {
	return cache.GetOrRender(ctx, CacheKey(s), ttl, func(context.Context) ([]byte, error) {
		return Render(s)
	})
}

// CacheKey is the render cache key for s.
func CacheKey(s Site) string {
	return "site:" + Digest(s)
}
