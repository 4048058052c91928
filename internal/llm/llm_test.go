package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/segmentation"
)

type stubCompleter struct {
	reply string
	err   error
	user  string
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.user = user
	return s.reply, s.err
}

func (s *stubCompleter) Provider() string { return "stub" }

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		wantCount  int
		wantAge    *AgeRange
	}{
		{
			name:       "plain json",
			completion: `{"suggestions":[{"segment":"state:CA","confidence":0.9,"reasoning":"r"}],"suggestedAgeRange":{"min":25,"max":44},"reasoning":"x"}`,
			wantCount:  1,
			wantAge:    &AgeRange{Min: 25, Max: 44},
		},
		{
			name:       "fenced json with text age range",
			completion: "```json\n{\"suggestions\":[{\"segment\":\"prefecture:東京都\",\"confidence\":0.7}],\"suggestedAgeRange\":\"30〜49\"}\n```",
			wantCount:  1,
			wantAge:    &AgeRange{Min: 30, Max: 49},
		},
		{
			name:       "blank segments dropped",
			completion: "```\n{\"suggestions\":[{\"segment\":\" \"},{\"segment\":\"a:b\"}]}\n```",
			wantCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseSuggestions(tt.completion)
			require.NoError(t, err)
			assert.Len(t, res.Suggestions, tt.wantCount)
			assert.Equal(t, tt.wantAge, res.SuggestedAgeRange)
		})
	}

	_, err := ParseSuggestions("Sure! Here are some segments: state:CA")
	assert.Error(t, err)
}

func TestSuggestSegmentsDegradesOnMalformedReply(t *testing.T) {
	s := NewSuggester(&stubCompleter{reply: "I cannot help with that."})
	res, err := s.SuggestSegments(context.Background(), AnalyzeRequest{Description: "spring sale"})
	require.NoError(t, err)
	assert.NotNil(t, res.Suggestions)
	assert.Empty(t, res.Suggestions)
}

func TestSuggestSegmentsSurfacesProviderErrors(t *testing.T) {
	s := NewSuggester(&stubCompleter{err: errors.New("rate limited")})
	_, err := s.SuggestSegments(context.Background(), AnalyzeRequest{Description: "x"})
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewSuggester(nil).SuggestSegments(context.Background(), AnalyzeRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUserPromptIncludesSchema(t *testing.T) {
	stub := &stubCompleter{reply: `{"suggestions":[]}`}
	_, err := NewSuggester(stub).SuggestSegments(context.Background(), AnalyzeRequest{
		Description: "Golf club mailer for affluent retirees",
		Schema: []SchemaTable{{
			Name: "contacts",
			Fields: []SchemaField{
				{Name: "income_band", DisplayName: "Income Band", BaseType: "type/Text", Samples: []string{"high", "mid"}},
			},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, stub.user, "Golf club mailer")
	assert.Contains(t, stub.user, "- income_band (Income Band) [Text]: high, mid")
}

func TestSegmentsToFilters(t *testing.T) {
	fields := []metabase.Field{
		{ID: 1, Name: "state", DisplayName: "State"},
		{ID: 2, Name: "hobby", DisplayName: "Main Hobby"},
	}
	suggestions := []Suggestion{
		{Segment: "state:CA", Confidence: 0.9},
		{Segment: "Main Hobby: golf", Confidence: 0.8},
		{Segment: "STATE:NY", Confidence: 0.6},
		{Segment: "state:TX", Confidence: 0.1},
		{Segment: "unknown:x", Confidence: 0.9},
		{Segment: "no separator", Confidence: 0.9},
	}

	filters := SegmentsToFilters(suggestions, fields, 0.5)
	require.Len(t, filters, 2)

	assert.Equal(t, 1, filters[0].FieldID)
	assert.Equal(t, segmentation.OpEquals, filters[0].Operator)
	assert.Equal(t, []any{"CA", "NY"}, filters[0].Values)
	assert.Equal(t, "golf", filters[1].Value)
	assert.Empty(t, filters[1].Values)

	clause := segmentation.Combine(filters)
	assert.Equal(t, segmentation.KindAnd, clause.Kind())
	assert.Equal(t, segmentation.KindOr, clause.Children()[0].Kind())
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		w.Write([]byte(`{"choices":[{"message":{"content":"{\"suggestions\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/"}, time.Second, srv.Client())
	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions":[]}`, out)
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, time.Second, srv.Client())
	_, err := c.Complete(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "status 429")
}

type stubInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
}

func (s *stubInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	s.input = in
	return &bedrockruntime.InvokeModelOutput{Body: []byte(s.body)}, nil
}

func TestBedrockClientComplete(t *testing.T) {
	inv := &stubInvoker{body: `{"content":[{"type":"text","text":"{\"suggestions\":"},{"type":"text","text":"[]}"}],"usage":{"input_tokens":10,"output_tokens":5}}`}
	c := NewBedrockClientWith(inv, "anthropic.claude-3-haiku-20240307-v1:0")

	out, err := c.Complete(context.Background(), "sys", "describe")
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions":[]}`, out)

	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", *inv.input.ModelId)
	var req bedrockRequest
	require.NoError(t, json.Unmarshal(inv.input.Body, &req))
	assert.Equal(t, "bedrock-2023-05-31", req.AnthropicVersion)
	assert.True(t, strings.HasPrefix(req.System, "sys"))
	assert.Equal(t, "describe", req.Messages[0].Content[0].Text)
}

func TestNewSelectsProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := New(context.Background(), config.LLMConfig{Provider: "OpenAI", OpenAI: config.OpenAIConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())

	_, err = New(context.Background(), config.LLMConfig{Provider: "palm"})
	assert.Error(t, err)
}
