package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// HTMLFile is the name the HTML report is published under.
const HTMLFile = "index.html"

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{ .Title }}</title>
    <style>
        body { font-family: Arial, sans-serif; background: #f4f4f9; margin: 0; padding: 20px; color: #333; }
        .container { max-width: 1100px; margin: 0 auto; }
        h1 { text-align: center; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(240px, 1fr)); gap: 20px; }
        .city-card { background: #fff; border-radius: 10px; box-shadow: 0 2px 6px rgba(0,0,0,0.1); padding: 16px; }
        .price { font-size: 1.4em; font-weight: bold; }
        .price-change { color: #555; }
        .up { color: #c0392b; }
        .down { color: #27ae60; }
        .no-data { color: #999; font-style: italic; }
    </style>
</head>
<body>
<div class="container">
    <h1>{{ .Title }}</h1>
    <div class="grid">
    {{- range .Sections }}
        <div class="city-card">
            <h2>{{ .Group }}</h2>
            {{- if eq .Status "no_data" }}
            <p class="no-data">No data available</p>
            {{- else }}
            <p class="price">Current Price: {{ money .CurrentPrice }}</p>
            <p>as of {{ .AsOf }}</p>
            {{- if eq .Status "ok" }}
            <p class="price-change {{ direction .Change }}">{{ $.WindowDays }}-day change: {{ money .Change }}<br>({{ $.WindowDays }}-day avg: {{ money .WindowAverage }})</p>
            {{- else }}
            <p class="price-change">Insufficient data for price trend</p>
            {{- end }}
            {{- end }}
        </div>
    {{- end }}
    </div>
</div>
</body>
</html>
`

var pageFuncs = template.FuncMap{
	"money":     money,
	"direction": direction,
}

var page = template.Must(template.New("report").Funcs(pageFuncs).Parse(pageTemplate))

// money puts a currency symbol after an optional sign: "+0.10" -> "+$0.10".
func money(s string) string {
	if s == "" {
		return ""
	}
	if s[0] == '+' || s[0] == '-' {
		return s[:1] + "$" + s[1:]
	}
	return "$" + s
}

func direction(change string) string {
	switch {
	case strings.HasPrefix(change, "-"):
		return "down"
	case strings.Trim(change, "+0.") == "":
		return ""
	default:
		return "up"
	}
}

// WriteHTML renders doc as a standalone HTML page.
func WriteHTML(w io.Writer, doc prices.Document) error {
	return page.Execute(w, doc)
}

// HTMLPublisher writes the report page into a directory.
type HTMLPublisher struct {
	dir string
}

func NewHTMLPublisher(dir string) *HTMLPublisher {
	return &HTMLPublisher{dir: dir}
}

func (p *HTMLPublisher) Publish(_ context.Context, doc prices.Document, _ prices.Dataset) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, doc); err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	path := filepath.Join(p.dir, HTMLFile)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	log.Info().Str("path", path).Msg("html report published")
	return nil
}
