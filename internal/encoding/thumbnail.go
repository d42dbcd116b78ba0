package encoding

import (
	"context"
	"log/slog"

	"vconv/internal/engine"
	"vconv/internal/formats"
	"vconv/internal/logging"
	"vconv/internal/services"
)

// ThumbnailMediaType is the media type of every thumbnail, including empty ones.
const ThumbnailMediaType = "image/jpeg"

const thumbnailOutput = "thumbnail.jpg"

// Thumbnail is a preview frame. Data is empty when extraction failed.
type Thumbnail struct {
	Data      []byte
	MediaType string
}

// Thumbnailer extracts preview frames using its own short-lived engines.
type Thumbnailer struct {
	factory engine.Factory
	load    engine.LoadConfig
	offset  string
	size    string
	logger  *slog.Logger
}

// NewThumbnailer constructs a thumbnailer. offset is an HH:MM:SS seek
// position and size a WIDTHxHEIGHT frame size.
func NewThumbnailer(factory engine.Factory, load engine.LoadConfig, offset, size string, logger *slog.Logger) *Thumbnailer {
	if offset == "" {
		offset = "00:00:01"
	}
	if size == "" {
		size = "160x120"
	}
	return &Thumbnailer{
		factory: factory,
		load:    load,
		offset:  offset,
		size:    size,
		logger:  logging.NewComponentLogger(logger, "thumbnailer"),
	}
}

// Generate extracts a single frame from the source. Failures are logged and
// yield an empty thumbnail.
func (t *Thumbnailer) Generate(ctx context.Context, name string, open Opener) Thumbnail {
	data, err := t.extract(ctx, name, open)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "thumbnail generation failed", "thumbnail_failed",
			logging.String("source", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job shows a placeholder preview"),
		)
		data = nil
	}
	return Thumbnail{Data: data, MediaType: ThumbnailMediaType}
}

func (t *Thumbnailer) extract(ctx context.Context, name string, open Opener) ([]byte, error) {
	if t == nil || t.factory == nil {
		return nil, services.Wrap(services.ErrConfiguration, "thumbnail", "load", "engine factory not configured", nil)
	}
	if open == nil {
		return nil, services.Wrap(services.ErrValidation, "thumbnail", "stage_input", "no source", nil)
	}
	eng := t.factory()
	defer eng.Terminate()

	if err := eng.Load(ctx, t.load); err != nil {
		return nil, err
	}
	inputName := "thumb_input." + formats.SourceFormat(name)
	reader, err := open()
	if err != nil {
		return nil, err
	}
	err = eng.WriteInput(inputName, reader)
	reader.Close()
	if err != nil {
		return nil, err
	}
	args := []string{
		"-i", inputName,
		"-ss", t.offset,
		"-vframes", "1",
		"-q:v", "2",
		"-s", t.size,
		"-update", "1",
		thumbnailOutput,
	}
	if err := eng.Execute(ctx, args); err != nil {
		return nil, err
	}
	return eng.ReadOutput(thumbnailOutput)
}
