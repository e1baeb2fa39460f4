// CLAUDE:SUMMARY Analysis engine: image and text entry points producing a validated Result, with fallback markers on the text path.
// Package analysis turns a landing-page screenshot, or its metadata when no
// screenshot exists, into a structured Result by consulting an external
// multimodal reasoning service.
//
// Both entry points share one prompt contract so a stored Result does not
// depend on which path produced it. Replies are validated strictly; an
// unusable reply is a *ParseError, a failed call a *ServiceError.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ImageReader loads a stored screenshot by reference.
type ImageReader interface {
	ReadFile(ref string) ([]byte, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Language       Language // Default: ja.
	ImageMaxTokens int      // Default: 4096.
	TextMaxTokens  int      // Default: 2048.
	Logger         *slog.Logger
}

func (c *EngineConfig) defaults() {
	if c.Language == "" {
		c.Language = LangJapanese
	}
	if c.ImageMaxTokens <= 0 {
		c.ImageMaxTokens = 4096
	}
	if c.TextMaxTokens <= 0 {
		c.TextMaxTokens = 2048
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine runs analyses.
type Engine struct {
	svc    Completer
	images ImageReader
	cfg    EngineConfig
}

// NewEngine creates an Engine calling svc and reading images from images.
func NewEngine(svc Completer, images ImageReader, cfg EngineConfig) *Engine {
	cfg.defaults()
	return &Engine{svc: svc, images: images, cfg: cfg}
}

// AnalyzeImage analyzes the stored screenshot at ref.
func (e *Engine) AnalyzeImage(ctx context.Context, ref string) (*Result, error) {
	img, err := e.images.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("analysis: read screenshot: %w", err)
	}
	mediaType := http.DetectContentType(img)
	if mediaType == "application/octet-stream" {
		mediaType = "image/png"
	}
	return e.run(ctx, PathImage, Request{
		Prompt:    ImagePrompt(e.cfg.Language),
		Image:     img,
		MediaType: mediaType,
		MaxTokens: e.cfg.ImageMaxTokens,
	})
}

// AnalyzeText analyzes from metadata only. The result always carries the
// fallback markers: designScore 0 and an empty colorPalette.
func (e *Engine) AnalyzeText(ctx context.Context, in TextInput) (*Result, error) {
	r, err := e.run(ctx, PathText, Request{
		Prompt:    TextPrompt(e.cfg.Language, in),
		MaxTokens: e.cfg.TextMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	r.DesignTone.DesignScore = 0
	r.DesignTone.ColorPalette = []string{}
	return r, nil
}

func (e *Engine) run(ctx context.Context, path Path, req Request) (*Result, error) {
	start := time.Now()
	reply, err := e.svc.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	r, err := Parse(reply)
	if err != nil {
		e.cfg.Logger.Warn("analysis: unusable reply",
			"path", path, "error", err, "reply_bytes", len(reply))
		return nil, err
	}
	e.cfg.Logger.Debug("analysis: reply parsed",
		"path", path, "sections", len(r.Sections),
		"duration_ms", time.Since(start).Milliseconds())
	return r, nil
}
