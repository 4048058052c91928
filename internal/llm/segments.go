package llm

import (
	"strings"

	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/segmentation"
)

// SegmentsToFilters turns "field:value" suggestions into equals filters.
// The field part matches a field name or display name, ignoring case;
// suggestions naming unknown fields, or below minConfidence, are skipped.
// Several values for one field become one filter with Values, which
// compiles to an OR.
func SegmentsToFilters(suggestions []Suggestion, fields []metabase.Field, minConfidence float64) []segmentation.FilterValue {
	byName := make(map[string]metabase.Field, len(fields)*2)
	for _, f := range fields {
		if f.DisplayName != "" {
			byName[strings.ToLower(f.DisplayName)] = f
		}
	}
	for _, f := range fields {
		byName[strings.ToLower(f.Name)] = f
	}

	var out []segmentation.FilterValue
	index := map[int]int{}

	for _, sg := range suggestions {
		if sg.Confidence < minConfidence {
			continue
		}
		name, value, ok := strings.Cut(sg.Segment, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		f, known := byName[strings.ToLower(name)]
		if !known || value == "" {
			continue
		}

		if i, seen := index[f.ID]; seen {
			fv := &out[i]
			if len(fv.Values) == 0 {
				fv.Values = []any{fv.Value}
			}
			fv.Values = append(fv.Values, value)
			continue
		}

		index[f.ID] = len(out)
		out = append(out, segmentation.FilterValue{
			FieldID:          f.ID,
			FieldName:        f.Name,
			FieldDisplayName: f.DisplayName,
			Operator:         segmentation.OpEquals,
			Value:            value,
		})
	}
	return out
}
