package report

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// JSONFile is the name the machine-readable report is published under.
const JSONFile = "report.json"

// JSONPublisher writes the rendered document as indented JSON.
type JSONPublisher struct {
	dir string
}

func NewJSONPublisher(dir string) *JSONPublisher {
	return &JSONPublisher{dir: dir}
}

func (p *JSONPublisher) Publish(_ context.Context, doc prices.Document, _ prices.Dataset) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("json report: %w", err)
	}
	path := filepath.Join(p.dir, JSONFile)
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("json report: %w", err)
	}
	log.Debug().Str("path", path).Msg("json report published")
	return nil
}
