package builder

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// LandingFileName is the landing page published at the prefix root.
const LandingFileName = "index.html"

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} documentation</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// writeLandingPage renders the configured markdown landing page to
// index.html at the output root. Without a configured page a minimal
// redirect-style landing page pointing at the default version is
// generated instead.
func (b *Builder) writeLandingPage(repoPath, outDir string) error {
	target := filepath.Join(outDir, LandingFileName)

	var body template.HTML
	if b.cfg.Build.LandingPage != "" {
		source := filepath.Join(repoPath, b.cfg.Build.LandingPage)
		raw, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read landing page source: %w", err)
		}
		var buf bytes.Buffer
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		if err := md.Convert(raw, &buf); err != nil {
			return fmt.Errorf("failed to render landing page markdown: %w", err)
		}
		body = template.HTML(buf.String()) //nolint:gosec // rendered from repository-controlled markdown
	} else {
		body = template.HTML(fmt.Sprintf(
			`<h1>%s documentation</h1><p><a href="%s/">Latest (%s)</a></p>`,
			template.HTMLEscapeString(b.cfg.Project.ID),
			template.HTMLEscapeString(b.cfg.Project.DefaultVersion),
			template.HTMLEscapeString(b.cfg.Project.DefaultVersion)))
	}

	var out bytes.Buffer
	err := landingTemplate.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: b.cfg.Project.ID, Body: body})
	if err != nil {
		return fmt.Errorf("failed to render landing page template: %w", err)
	}

	if err := os.WriteFile(target, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write landing page: %w", err)
	}
	slog.Debug("Wrote landing page", logfields.Path(target))
	return nil
}
