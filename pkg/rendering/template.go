// Package rendering renders URL, path and object-key templates for
// acquisition sources
package rendering

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/lestrrat-go/strftime"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/location"
)

// TemplateEngine provides template rendering with Sprig functions
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine with Sprig functions
func NewTemplateEngine() *TemplateEngine {
	funcs := sprig.TxtFuncMap()
	funcs["strftime"] = Strftime

	return &TemplateEngine{
		funcMap: funcs,
	}
}

// Check parses content without executing it
func (t *TemplateEngine) Check(content string) error {
	if _, err := template.New("source").Funcs(t.funcMap).Parse(content); err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return nil
}

// Render renders a template with the given variables. Missing keys are an
// error so a typo never produces a silently wrong URL.
func (t *TemplateEngine) Render(content string, variables map[string]any) (string, error) {
	tmpl, err := template.New("source").Funcs(t.funcMap).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// BuildVariables builds template variables for fetching one date of a slot
func (t *TemplateEngine) BuildVariables(identifier string, region location.Region, slot dataset.Slot, date time.Time) map[string]any {
	date = date.UTC()

	level := ""
	if slot.Level != nil {
		level = strconv.Itoa(*slot.Level)
	}

	return map[string]any{
		"dataset": identifier,
		"time":    date,
		"year":    date.Format("2006"),
		"month":   date.Format("01"),
		"day":     date.Format("02"),
		"hour":    date.Format("15"),
		"doy":     fmt.Sprintf("%03d", date.YearDay()),
		"ymd":     date.Format("20060102"),
		"var": map[string]any{
			"name":   slot.Name,
			"prefix": slot.Prefix,
			"level":  level,
		},
		"region": map[string]any{
			"name":       region.Name(),
			"hemisphere": hemisphereCode(region),
			"north":      region.IsNorth(),
			"south":      region.IsSouth(),
			"bounds":     region.Bounds(),
		},
	}
}

func hemisphereCode(region location.Region) string {
	switch {
	case region.World():
		return "gl"
	case region.IsNorth():
		return "nh"
	case region.IsSouth():
		return "sh"
	default:
		return region.Name()
	}
}

// Strftime formats t in UTC with a strftime-style pattern. Unknown
// directives are an error.
func Strftime(format string, t time.Time) (string, error) {
	out, err := strftime.Format(format, t.UTC())
	if err != nil {
		return "", fmt.Errorf("strftime %q: %w", format, err)
	}

	return out, nil
}
