package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// PlanInfo describes what a run would do without doing it.
type PlanInfo struct {
	SourceIndex   string          `json:"source_index" yaml:"source_index"`
	Field         string          `json:"field" yaml:"field"`
	FormatDate    string          `json:"format_date" yaml:"format_date"`
	Destination   string          `json:"destination" yaml:"destination"`
	Example       string          `json:"example" yaml:"example"`
	InvalidPolicy string          `json:"invalid_policy" yaml:"invalid_policy"`
	InvalidIndex  string          `json:"invalid_index,omitempty" yaml:"invalid_index,omitempty"`
	BatchSize     int             `json:"batch_size" yaml:"batch_size"`
	Workers       int             `json:"workers" yaml:"workers"`
	Query         json.RawMessage `json:"query" yaml:"-"`
	QueryYAML     any             `json:"-" yaml:"query"`
}

// RenderPlan writes the plan in the given format.
func RenderPlan(out io.Writer, plan PlanInfo, format Format, noColor bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(out, plan)
	case FormatYAML:
		if plan.QueryYAML == nil && len(plan.Query) > 0 {
			var q any
			if err := json.Unmarshal(plan.Query, &q); err != nil {
				return err
			}
			plan.QueryYAML = q
		}
		return writeYAML(out, plan)
	}

	styles := GetStyles(noColor)
	_, _ = fmt.Fprintf(out, "%s\n\n", styles.Header.Render("Split plan: "+plan.SourceIndex))
	row := func(label, value string) {
		_, _ = fmt.Fprintf(out, "  %s %s\n", styles.Label.Render(fmt.Sprintf("%-14s", label+":")), value)
	}
	row("Split field", plan.Field)
	row("Date format", plan.FormatDate)
	row("Destination", plan.Destination)
	row("Example", plan.Example)
	row("Invalid dates", plan.InvalidPolicy)
	if plan.InvalidIndex != "" {
		row("Invalid index", plan.InvalidIndex)
	}
	row("Batch size", fmt.Sprint(plan.BatchSize))
	row("Workers", fmt.Sprint(plan.Workers))

	_, _ = fmt.Fprintf(out, "\n  %s\n", styles.Section.Render("Query:"))
	var pretty any
	if err := json.Unmarshal(plan.Query, &pretty); err != nil {
		return err
	}
	body, err := json.MarshalIndent(pretty, "    ", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "    %s\n", body)
	return nil
}
