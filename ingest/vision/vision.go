// Package vision implements the OCR-then-VLM arbiter (C6): given a set of
// image paths inside a document's workspace, it resolves each to either an
// accepted OCR transcription or a vision-model description, appends
// human-readable blocks to text/content.txt, and persists both result sets
// as workspace artifacts.
//
// Neither an OCR engine nor a vision-model API is in scope for this
// package: both are external collaborators, specified only by the
// interface this package consumes (spec.md's "Deliberately out of scope"
// list). OCR is the OCR interface; the vision model is consumed through
// llm.ChatModel — already built in this repo with multimodal
// (schema.ImagePart) support — rather than a second, parallel provider
// abstraction.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/internal/syncutil"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/schema"
)

// MinImageBytes is the size floor below which an image is dropped from
// both OCR and VLM consideration.
const MinImageBytes = 5 * 1024

// OCRConfidenceThreshold and OCRMinChars gate whether an OCR result is
// accepted outright or the image is escalated to the vision model.
const (
	OCRConfidenceThreshold = 0.70
	OCRMinChars            = 10
)

// MaxVLMImages caps how many images are sent to the vision model per
// document; the queue is ranked by file size descending, so the largest
// (most likely information-dense) images are prioritized when the cap is
// hit.
const MaxVLMImages = 10

// MinVLMDimension is the minimum width/height a VLM-bound image must have;
// smaller images (icons, spacers) are rejected rather than described.
const MinVLMDimension = 50

// VisionPrompt is the fixed describe/transcribe prompt sent with every VLM
// call.
const VisionPrompt = "Describe this image in detail. If it contains readable text, transcribe that text verbatim. If it is a chart or graph, describe its structure and the data it conveys."

// OCRResult is a single image's raw OCR outcome.
type OCRResult struct {
	Text       string
	Confidence float64
}

// OCR recognizes text in image bytes, returning the transcription and the
// engine's confidence in [0,1].
type OCR interface {
	Recognize(ctx context.Context, image []byte) (OCRResult, error)
}

// ProviderModels is a vision-model provider's allowed model set and its
// fallback default, used by ResolveModel.
type ProviderModels struct {
	Whitelist []string
	Default   string
}

// ResolveModel returns requested if it is in provider's whitelist,
// otherwise provider's configured default. An unconfigured provider name
// passes requested through unchanged. This implements spec.md's "model
// whitelist enforced per provider with fallback to a provider default on
// unknown model".
func ResolveModel(provider, requested string, providers map[string]ProviderModels) string {
	pm, ok := providers[provider]
	if !ok {
		return requested
	}
	for _, m := range pm.Whitelist {
		if m == requested {
			return requested
		}
	}
	return pm.Default
}

// Config configures an Arbiter.
type Config struct {
	// Store is the workspace the document's images live in and results are
	// written to. Required.
	Store artifactstore.ArtifactStore

	// OCR performs the first-pass recognition. Required.
	OCR OCR

	// VLM is consulted for images OCR could not confidently resolve.
	// Required.
	VLM llm.ChatModel

	// Concurrency bounds how many OCR calls run at once, offloading OCR off
	// the calling goroutine per spec.md §4.C6. Defaults to 4.
	Concurrency int
}

// Arbiter runs the OCR-then-VLM arbitration algorithm over a document's
// images.
type Arbiter struct {
	store       artifactstore.ArtifactStore
	ocr         OCR
	vlm         llm.ChatModel
	concurrency int
}

// New constructs an Arbiter from cfg.
func New(cfg Config) (*Arbiter, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vision: store is required")
	}
	if cfg.OCR == nil {
		return nil, fmt.Errorf("vision: OCR is required")
	}
	if cfg.VLM == nil {
		return nil, fmt.Errorf("vision: VLM is required")
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	return &Arbiter{store: cfg.Store, ocr: cfg.OCR, vlm: cfg.VLM, concurrency: concurrency}, nil
}

type candidate struct {
	path string
	data []byte
}

// Process runs the arbitration over docID's imagePaths (workspace-relative
// paths), appends "[Image Text …]"/"[Image Description …]" blocks to
// text/content.txt, and persists images/ocr_analysis.json and (when any
// image was escalated) images/analysis.json. It returns the raw OCR
// records and the resolved per-image analyses for the structuring stage.
func (a *Arbiter) Process(ctx context.Context, docID string, imagePaths []string) ([]schema.OCRResult, []schema.ImageAnalysis, error) {
	candidates := make([]candidate, 0, len(imagePaths))
	for _, p := range imagePaths {
		data, err := a.store.Read(ctx, docID, p)
		if err != nil || len(data) < MinImageBytes {
			continue
		}
		candidates = append(candidates, candidate{path: p, data: data})
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	ocrResults := a.runOCR(ctx, candidates)

	var ocrRecords []schema.OCRResult
	var analyses []schema.ImageAnalysis
	var vlmQueue []candidate

	for _, c := range candidates {
		res := ocrResults[c.path]
		ocrRecords = append(ocrRecords, schema.OCRResult{
			Image:      c.path,
			Text:       res.Text,
			Confidence: res.Confidence,
		})
		if res.Confidence >= OCRConfidenceThreshold && len(strings.TrimSpace(res.Text)) >= OCRMinChars {
			analyses = append(analyses, schema.ImageAnalysis{
				Method:     "ocr",
				Image:      c.path,
				Content:    res.Text,
				Confidence: res.Confidence,
			})
			continue
		}
		vlmQueue = append(vlmQueue, c)
	}

	sort.SliceStable(vlmQueue, func(i, j int) bool { return len(vlmQueue[i].data) > len(vlmQueue[j].data) })
	if len(vlmQueue) > MaxVLMImages {
		vlmQueue = vlmQueue[:MaxVLMImages]
	}

	var vlmAnalyses []schema.ImageAnalysis
	for _, c := range vlmQueue {
		analysis, ok, err := a.describeImage(ctx, c)
		if err != nil || !ok {
			continue
		}
		analyses = append(analyses, analysis)
		vlmAnalyses = append(vlmAnalyses, analysis)
	}

	if err := a.appendContentBlocks(ctx, docID, analyses); err != nil {
		return nil, nil, err
	}
	if err := a.writeJSON(ctx, docID, filepath.Join(artifactstore.ImagesDir, "ocr_analysis.json"), ocrRecords); err != nil {
		return nil, nil, err
	}
	if len(vlmAnalyses) > 0 {
		if err := a.writeJSON(ctx, docID, filepath.Join(artifactstore.ImagesDir, "analysis.json"), vlmAnalyses); err != nil {
			return nil, nil, err
		}
	}

	return ocrRecords, analyses, nil
}

// runOCR offloads every candidate's recognition onto a bounded worker
// pool, off the calling goroutine, and waits for all of them to finish.
func (a *Arbiter) runOCR(ctx context.Context, candidates []candidate) map[string]OCRResult {
	pool := syncutil.NewWorkerPool(a.concurrency)
	results := make(map[string]OCRResult, len(candidates))
	var mu sync.Mutex

	for _, c := range candidates {
		c := c
		pool.Submit(func() {
			res, err := a.ocr.Recognize(ctx, c.data)
			if err != nil {
				res = OCRResult{}
			}
			mu.Lock()
			results[c.path] = res
			mu.Unlock()
		})
	}
	pool.Wait()
	return results
}

// describeImage normalizes c.data to JPEG, rejects undersized images, and
// asks the VLM to describe/transcribe it.
func (a *Arbiter) describeImage(ctx context.Context, c candidate) (schema.ImageAnalysis, bool, error) {
	jpegData, width, height, err := normalizeToJPEG(c.data)
	if err != nil {
		return schema.ImageAnalysis{}, false, nil
	}
	if width < MinVLMDimension || height < MinVLMDimension {
		return schema.ImageAnalysis{}, false, nil
	}

	msg := &schema.HumanMessage{Parts: []schema.ContentPart{
		schema.TextPart{Text: VisionPrompt},
		schema.ImagePart{Data: jpegData, MimeType: "image/jpeg"},
	}}

	resp, err := a.vlm.Generate(ctx, []schema.Message{msg})
	if err != nil {
		return schema.ImageAnalysis{}, false, fmt.Errorf("vision: describe %s: %w", c.path, err)
	}

	return schema.ImageAnalysis{
		Method:  "vlm",
		Image:   c.path,
		Content: resp.Text(),
		IsGraph: looksLikeGraph(resp.Text()),
	}, true, nil
}

func looksLikeGraph(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range []string{"chart", "graph", "plot", "axis", "bar chart", "pie chart"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// normalizeToJPEG decodes data (PNG/JPEG/GIF, the stdlib-registered
// formats) and re-encodes it as JPEG, returning the encoded bytes and the
// source image's dimensions.
func normalizeToJPEG(data []byte) (jpegData []byte, width, height int, err error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), width, height, nil
}

func (a *Arbiter) appendContentBlocks(ctx context.Context, docID string, analyses []schema.ImageAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}
	relPath := filepath.Join(artifactstore.TextDir, "content.txt")
	existing, _ := a.store.Read(ctx, docID, relPath)

	var blocks strings.Builder
	blocks.Write(existing)
	for _, img := range analyses {
		name := filepath.Base(img.Image)
		if img.Method == "ocr" {
			fmt.Fprintf(&blocks, "\n[Image Text (%s): %s]", name, img.Content)
		} else {
			fmt.Fprintf(&blocks, "\n[Image Description (%s): %s]", name, img.Content)
		}
	}

	return a.store.Write(ctx, docID, relPath, []byte(blocks.String()))
}

func (a *Arbiter) writeJSON(ctx context.Context, docID, relPath string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vision: marshal %s: %w", relPath, err)
	}
	if err := a.store.Write(ctx, docID, relPath, data); err != nil {
		return fmt.Errorf("vision: write %s: %w", relPath, err)
	}
	return nil
}
