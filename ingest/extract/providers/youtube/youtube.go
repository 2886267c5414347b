// Package youtube extracts a transcript from a YouTube video by fetching
// its public caption track (the timedtext endpoint, no API key required)
// and concatenating the caption text. No YouTube-transcript library
// appears in the example corpus, and the caption track is a plain XML
// document, so this is built directly on net/http and encoding/xml rather
// than adopting a dependency for a single well-documented public endpoint.
// It registers itself under schema.SourceYouTube.
package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourceYouTube, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// timedTextBody is the shape of the caption track's XML document: a flat
// list of timed <text> elements.
type timedTextBody struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Content string `xml:",chardata"`
	} `xml:"text"`
}

// Extractor fetches a YouTube video's caption track and writes its
// concatenated text as the transcript.
type Extractor struct {
	store      artifactstore.ArtifactStore
	client     *http.Client
	lang       string
	endpointFn func(videoID, lang string) string
}

// New constructs an Extractor backed by cfg.Store. cfg.Options may set
// "http_client" (*http.Client) and "lang" (caption language code, default
// "en").
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/youtube: store is required")
	}
	client, _ := cfg.Options["http_client"].(*http.Client)
	if client == nil {
		client = http.DefaultClient
	}
	lang, _ := cfg.Options["lang"].(string)
	if lang == "" {
		lang = "en"
	}
	return &Extractor{store: cfg.Store, client: client, lang: lang, endpointFn: timedTextURL}, nil
}

func timedTextURL(videoID, lang string) string {
	v := url.Values{}
	v.Set("lang", lang)
	v.Set("v", videoID)
	return "https://video.google.com/timedtext?" + v.Encode()
}

// Extract resolves the video ID out of videoURL, fetches its caption
// track, and writes the concatenated transcript to text/content.txt.
func (e *Extractor) Extract(ctx context.Context, videoURL string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, videoURL)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: new workspace: %w", err)
	}

	videoID, err := VideoID(videoURL)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpointFn(videoID, e.lang), nil)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: fetch captions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: fetch captions: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: read captions: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: no captions available for %s", videoID)
	}

	var doc timedTextBody
	if err := xml.Unmarshal(body, &doc); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: parse captions: %w", err)
	}

	var transcript strings.Builder
	for _, t := range doc.Texts {
		transcript.WriteString(strings.TrimSpace(t.Content))
		transcript.WriteString(" ")
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(strings.TrimSpace(transcript.String()))); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/youtube: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceYouTube,
	}, nil
}

// VideoID extracts the 11-character video ID from a youtube.com/watch,
// youtu.be, or youtube.com/shorts URL.
func VideoID(videoURL string) (string, error) {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}
	switch {
	case strings.Contains(u.Host, "youtu.be"):
		return strings.Trim(u.Path, "/"), nil
	case strings.Contains(u.Path, "/shorts/"):
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		return parts[len(parts)-1], nil
	default:
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("no video id found in %s", videoURL)
	}
}
