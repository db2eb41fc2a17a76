package prices

import (
	"github.com/shopspring/decimal"
)

// DefaultDecimalPrecision is the number of decimals prices are rendered with.
const DefaultDecimalPrecision = 2

// DefaultReportTitle is used when ReportConfig.Title is empty.
const DefaultReportTitle = "Egg Price Report"

// Status describes the state of one report section.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
	StatusNoData           Status = "no_data"
)

// ReportConfig is supplied by the caller; the core never reads the environment.
type ReportConfig struct {
	Groups           []string
	WindowDays       int
	DecimalPrecision int32
	Title            string
}

func (c ReportConfig) withDefaults() ReportConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.DecimalPrecision <= 0 {
		c.DecimalPrecision = DefaultDecimalPrecision
	}
	if c.Title == "" {
		c.Title = DefaultReportTitle
	}
	return c
}

// Document is the rendered report: one section per configured group, in order.
type Document struct {
	Title      string    `json:"title"`
	WindowDays int       `json:"window_days"`
	Sections   []Section `json:"sections"`
}

// Section is the presentation-neutral view of a group's Trend.
// Numeric fields are pre-formatted strings; Change always carries a sign.
type Section struct {
	Group         string `json:"group"`
	Status        Status `json:"status"`
	CurrentPrice  string `json:"current_price,omitempty"`
	AsOf          string `json:"as_of,omitempty"`
	Change        string `json:"change,omitempty"`
	WindowAverage string `json:"window_average,omitempty"`
}

// Field is one key/value pair of a section.
type Field struct {
	Key   string
	Value string
}

// Fields returns the populated fields of the section in a fixed order.
func (s Section) Fields() []Field {
	fields := []Field{
		{Key: "group", Value: s.Group},
		{Key: "status", Value: string(s.Status)},
	}
	if s.Status == StatusNoData {
		return fields
	}
	fields = append(fields,
		Field{Key: "current_price", Value: s.CurrentPrice},
		Field{Key: "as_of", Value: s.AsOf},
	)
	if s.Status == StatusOK {
		fields = append(fields,
			Field{Key: "change", Value: s.Change},
			Field{Key: "window_average", Value: s.WindowAverage},
		)
	}
	return fields
}

// Section returns the section for group, if the document has one.
func (d Document) Section(group string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Group == group {
			return s, true
		}
	}
	return Section{}, false
}

// Render aggregates every configured group and projects the results into a
// Document. Groups are taken from cfg, not from the data, so a group without
// observations still gets a no-data section.
func Render(ds Dataset, cfg ReportConfig) (Document, error) {
	cfg = cfg.withDefaults()
	doc := Document{
		Title:      cfg.Title,
		WindowDays: cfg.WindowDays,
		Sections:   make([]Section, 0, len(cfg.Groups)),
	}

	for _, g := range cfg.Groups {
		trend, err := Aggregate(ds, g, cfg.WindowDays)
		if err != nil {
			return Document{}, err
		}
		doc.Sections = append(doc.Sections, project(trend, cfg.DecimalPrecision))
	}
	return doc, nil
}

func project(t Trend, precision int32) Section {
	s := Section{Group: t.Group}
	if !t.HasData() {
		s.Status = StatusNoData
		return s
	}

	s.CurrentPrice = FormatAmount(t.Current.Value, precision)
	s.AsOf = t.Current.Timestamp
	if !t.HasTrend() {
		s.Status = StatusInsufficientData
		return s
	}

	s.Status = StatusOK
	s.Change = FormatSigned(*t.Delta, precision)
	s.WindowAverage = FormatAmount(*t.WindowAverage, precision)
	return s
}

// FormatAmount rounds half away from zero to precision decimals.
func FormatAmount(v float64, precision int32) string {
	return decimal.NewFromFloat(v).StringFixed(precision)
}

// FormatSigned is FormatAmount with an explicit sign. The sign follows the
// rounded value, so anything that rounds to zero prints as "+0.00".
func FormatSigned(v float64, precision int32) string {
	d := decimal.NewFromFloat(v).Round(precision)
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(precision)
	}
	return d.StringFixed(precision)
}
