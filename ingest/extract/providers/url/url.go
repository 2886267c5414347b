// Package url extracts visible text and same-origin image references from
// a web page, fetched over plain net/http and parsed with
// golang.org/x/net/html. It registers itself under schema.SourceURL.
package url

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

// MaxImages caps how many same-origin image references are surfaced for
// the vision stage, mirroring the Python scraper's max_images cutoff.
const MaxImages = 8

func init() {
	extract.Register(schema.SourceURL, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor fetches a page and writes its visible text to
// text/content.txt, recording up to MaxImages same-origin image URLs.
type Extractor struct {
	store  artifactstore.ArtifactStore
	client *http.Client
}

// New constructs an Extractor backed by cfg.Store. An *http.Client may be
// supplied via cfg.Options["http_client"]; otherwise http.DefaultClient is
// used.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/url: store is required")
	}
	client, _ := cfg.Options["http_client"].(*http.Client)
	if client == nil {
		client = http.DefaultClient
	}
	return &Extractor{store: cfg.Store, client: client}, nil
}

// Extract fetches pageURL, extracts visible text and same-origin <img> src
// attributes, and writes text/content.txt. ImagePaths on the returned
// Extraction holds absolute image URLs (not workspace-relative paths,
// since this extractor does not download the images itself — the vision
// stage fetches them directly).
func (e *Extractor) Extract(ctx context.Context, pageURL string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, pageURL)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: new workspace: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return schema.Extraction{}, fmt.Errorf("extract/url: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: read body: %w", err)
	}

	text, images, err := parsePage(body, pageURL)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: parse %s: %w", pageURL, err)
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(text)); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/url: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceURL,
		ImagePaths:   images,
	}, nil
}

func parsePage(body []byte, pageURL string) (text string, images []string, err error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	var textParts []string
	var imgs []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				textParts = append(textParts, t)
			}
		}
		if n.Type == html.ElementNode && n.Data == "img" && len(imgs) < MaxImages {
			for _, a := range n.Attr {
				if a.Key != "src" {
					continue
				}
				ref, err := url.Parse(a.Val)
				if err != nil {
					continue
				}
				resolved := base.ResolveReference(ref)
				if resolved.Host != "" && resolved.Host != base.Host {
					continue
				}
				imgs = append(imgs, resolved.String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(textParts, "\n"), imgs, nil
}
