package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// Suggestion is one targeting rule written as "field:value".
type Suggestion struct {
	Segment    string  `json:"segment"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// AgeRange is the suggested audience age band.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

var ageRangeText = regexp.MustCompile(`(\d+)\s*[-~〜–]\s*(\d+)`)

// UnmarshalJSON accepts {"min":25,"max":44} or "25-44". Anything else
// leaves the range zero rather than failing the whole result.
func (a *AgeRange) UnmarshalJSON(b []byte) error {
	var obj struct {
		Min json.Number `json:"min"`
		Max json.Number `json:"max"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		lo, _ := obj.Min.Int64()
		hi, _ := obj.Max.Int64()
		a.Min, a.Max = int(lo), int(hi)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if m := ageRangeText.FindStringSubmatch(s); m != nil {
			a.Min, _ = strconv.Atoi(m[1])
			a.Max, _ = strconv.Atoi(m[2])
		}
	}
	return nil
}

// SuggestionResult is the parsed model reply.
type SuggestionResult struct {
	Suggestions       []Suggestion `json:"suggestions"`
	SuggestedAgeRange *AgeRange    `json:"suggestedAgeRange,omitempty"`
	Reasoning         string       `json:"reasoning"`
}

// SchemaField describes one column offered to the model.
type SchemaField struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	BaseType    string   `json:"baseType,omitempty"`
	Samples     []string `json:"samples,omitempty"`
}

// SchemaTable groups the fields of one table.
type SchemaTable struct {
	Name   string        `json:"name"`
	Fields []SchemaField `json:"fields"`
}

// AnalyzeRequest is a campaign description plus the schema it may target.
type AnalyzeRequest struct {
	Description string
	Schema      []SchemaTable
}

const systemPrompt = `You are a marketing segmentation analyst for a direct-mail and email team.
Given a campaign description and the columns of the customer tables, suggest the audience segments
most likely to respond. Write every segment as field_name:value using a field name exactly as listed
and, where samples are shown, one of the sample values.
Respond with JSON in this shape:
{"suggestions":[{"segment":"field:value","confidence":0.0,"reasoning":"..."}],
 "suggestedAgeRange":{"min":0,"max":0},
 "reasoning":"overall rationale"}
confidence is between 0 and 1. Return at most 10 suggestions.`

// Suggester asks a Completer for segment suggestions.
type Suggester struct {
	completer Completer
}

// NewSuggester creates a Suggester. A nil completer makes every call
// return ErrNotConfigured.
func NewSuggester(c Completer) *Suggester {
	return &Suggester{completer: c}
}

// Available reports whether a provider is configured.
func (s *Suggester) Available() bool {
	return s != nil && s.completer != nil
}

// SuggestSegments asks the model for segments. Provider failures are
// returned; an unparseable reply yields an empty result instead.
func (s *Suggester) SuggestSegments(ctx context.Context, req AnalyzeRequest) (*SuggestionResult, error) {
	if !s.Available() {
		return nil, ErrNotConfigured
	}
	provider := s.completer.Provider()

	completion, err := s.completer.Complete(ctx, systemPrompt, buildUserPrompt(req))
	if err != nil {
		metrics.SuggestionServed(provider, "error")
		return nil, fmt.Errorf("segment suggestions: %w", err)
	}

	result, err := ParseSuggestions(completion)
	if err != nil {
		logger.Warn("Unparseable segment suggestions, returning none",
			"provider", provider,
			"error", err,
			"completion_length", len(completion))
		metrics.SuggestionServed(provider, "parse_error")
		return &SuggestionResult{Suggestions: []Suggestion{}}, nil
	}

	metrics.SuggestionServed(provider, "ok")
	return result, nil
}

// ParseSuggestions decodes a model reply, tolerating markdown code fences.
func ParseSuggestions(completion string) (*SuggestionResult, error) {
	completion = strings.TrimSpace(completion)
	if strings.HasPrefix(completion, "```json") {
		completion = strings.TrimPrefix(completion, "```json")
		completion = strings.TrimSuffix(completion, "```")
		completion = strings.TrimSpace(completion)
	} else if strings.HasPrefix(completion, "```") {
		completion = strings.TrimPrefix(completion, "```")
		completion = strings.TrimSuffix(completion, "```")
		completion = strings.TrimSpace(completion)
	}

	var result SuggestionResult
	if err := json.Unmarshal([]byte(completion), &result); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}

	kept := make([]Suggestion, 0, len(result.Suggestions))
	for _, sg := range result.Suggestions {
		if strings.TrimSpace(sg.Segment) == "" {
			continue
		}
		kept = append(kept, sg)
	}
	result.Suggestions = kept
	return &result, nil
}

func buildUserPrompt(req AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString("Campaign description:\n")
	b.WriteString(strings.TrimSpace(req.Description))
	b.WriteString("\n\nAvailable columns:\n")
	for _, t := range req.Schema {
		fmt.Fprintf(&b, "Table %s\n", t.Name)
		for _, f := range t.Fields {
			fmt.Fprintf(&b, "- %s", f.Name)
			if f.DisplayName != "" && f.DisplayName != f.Name {
				fmt.Fprintf(&b, " (%s)", f.DisplayName)
			}
			if f.BaseType != "" {
				fmt.Fprintf(&b, " [%s]", strings.TrimPrefix(f.BaseType, "type/"))
			}
			if len(f.Samples) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(f.Samples, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
