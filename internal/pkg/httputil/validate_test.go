package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleItem struct {
	Operator string `json:"operator" validate:"required,oneof=equals not_equals"`
}

type sampleRequest struct {
	DatabaseID int          `json:"databaseId" validate:"gt=0"`
	Limit      int          `json:"limit" validate:"gte=0,lte=500"`
	Items      []sampleItem `json:"items" validate:"dive"`
}

func TestDecodeRejectsInvalidFields(t *testing.T) {
	body := `{"databaseId":0,"limit":900,"items":[{"operator":"nope"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var dst sampleRequest
	ok := Decode(rec, req, &dst)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)

	fields := map[string]string{}
	for _, d := range resp.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "must be greater than 0", fields["databaseId"])
	assert.Equal(t, "must be at most 500", fields["limit"])
	assert.Contains(t, fields["items[0].operator"], "must be one of")
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	rec := httptest.NewRecorder()

	var dst sampleRequest
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"body"`)
}

func TestDecodeAcceptsValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"databaseId":3,"items":[{"operator":"equals"}]}`))
	rec := httptest.NewRecorder()

	var dst sampleRequest
	require.True(t, Decode(rec, req, &dst))
	assert.Equal(t, 3, dst.DatabaseID)
}

func TestInternalErrorCarriesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"`+assert.AnError.Error()+`"}`, rec.Body.String())
}

func TestCampaignCodeCharacterSet(t *testing.T) {
	type campaign struct {
		Code string `json:"campaignCode" validate:"max=64,campaigncode"`
	}
	for _, code := range []string{"", "L003", "spring-2026_v2.1"} {
		assert.Empty(t, Validate(&campaign{Code: code}), code)
	}
	for _, code := range []string{`L003\`, `L003\' OR 1=1 --`, "L'3", "a b", "L003;"} {
		errs := Validate(&campaign{Code: code})
		require.Len(t, errs, 1, code)
		assert.Equal(t, "campaignCode", errs[0].Field)
		assert.Contains(t, errs[0].Message, "may only contain")
	}
}
