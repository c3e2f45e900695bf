package extract

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/store"
)

// TextExtractor produces plaintext from a PDF file.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Service runs the extraction pipeline for downloaded invoice files:
// PDF text → operator classification → field rules → deduplicated insert.
type Service struct {
	texts TextExtractor
	store store.Store
	log   *zap.Logger
}

// NewService creates an extraction Service.
func NewService(texts TextExtractor, st store.Store) *Service {
	return &Service{
		texts: texts,
		store: st,
		log:   zap.L().With(zap.String("component", "extract")),
	}
}

// ProcessFile extracts a canonical invoice record from the PDF at path and
// persists it. A record whose dedup identity is already stored is left
// untouched.
func (s *Service) ProcessFile(ctx context.Context, path string) error {
	text, err := s.texts.ExtractText(ctx, path)
	if err != nil {
		return eris.Wrapf(err, "extract: read pdf text %s", filepath.Base(path))
	}

	op := ClassifyOperator(text)
	inv := Extract(op, text)

	outcome, err := s.store.Insert(ctx, &inv)
	if err != nil {
		return eris.Wrapf(err, "extract: persist invoice from %s", filepath.Base(path))
	}

	s.log.Info("invoice processed",
		zap.String("file", filepath.Base(path)),
		zap.String("operator", string(op)),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
