package builder

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/net/html"
)

// ValidateOutput sanity-checks a rendered version directory before it
// is packaged: the directory must contain an index.html that parses as
// HTML and carries a non-empty <title>. A generator that exits zero
// but produces an empty or broken tree is caught here instead of
// after publishing.
func ValidateOutput(outDir, version string) error {
	versionDir := filepath.Join(outDir, version)
	entries, err := os.ReadDir(versionDir)
	if err != nil {
		return fmt.Errorf("rendered output missing: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("rendered output empty: %s", versionDir)
	}

	indexPath := filepath.Join(versionDir, "index.html")
	f, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("rendered index.html missing: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return fmt.Errorf("rendered index.html is not parseable HTML: %w", err)
	}
	if title := findTitle(doc); title == "" {
		return fmt.Errorf("rendered index.html has no title: %s", indexPath)
	}
	return nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return n.FirstChild.Data
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
