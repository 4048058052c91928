package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/list-builder/internal/segmentation"
)

func writeFilters(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTarget(t *testing.T) {
	databaseID, tableID = 1, 2
	filtersFile = writeFilters(t, `[{"fieldId":12,"operator":"equals","values":["CA","NY"]}]`)
	t.Cleanup(func() { filtersFile = "" })

	target, err := loadTarget()
	require.NoError(t, err)
	assert.Equal(t, 2, target.TableID)
	require.Len(t, target.Filters, 1)
	assert.Equal(t, segmentation.OpEquals, target.Filters[0].Operator)
	assert.Equal(t, []any{"CA", "NY"}, target.Filters[0].Values)
}

func TestLoadTargetRejectsInvalidFilters(t *testing.T) {
	t.Cleanup(func() { filtersFile = "" })

	filtersFile = writeFilters(t, `{"fieldId":12}`)
	_, err := loadTarget()
	assert.ErrorContains(t, err, "JSON array")

	filtersFile = writeFilters(t, `[{"fieldId":12,"operator":"like"}]`)
	_, err = loadTarget()
	assert.ErrorContains(t, err, "operator")
}

func TestLoadTargetWithoutFilters(t *testing.T) {
	databaseID, tableID, filtersFile = 3, 4, ""
	target, err := loadTarget()
	require.NoError(t, err)
	assert.Empty(t, target.Filters)
	assert.Equal(t, 3, target.DatabaseID)
}

func TestCampaignOptions(t *testing.T) {
	t.Cleanup(func() { historyTable, campaignCode, lookbackDays, logHistory = 0, "", -1, false })

	historyTable, campaignCode, lookbackDays, logHistory = 9, "L003", -1, true
	opts, err := campaignOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.LookbackDays, "-1 defers to config")
	assert.Equal(t, "L003", opts.CampaignCode)

	lookbackDays = 0
	opts, err = campaignOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.LookbackDays)
	assert.Zero(t, *opts.LookbackDays)
}

func TestCampaignOptionsRejectsInvalidFlags(t *testing.T) {
	t.Cleanup(func() { campaignCode, lookbackDays = "", -1 })

	tests := []struct {
		code     string
		lookback int
		want     string
	}{
		{`L003\' OR 1=1 --`, -1, "invalid --campaign"},
		{strings.Repeat("L", 65), -1, "invalid --campaign: must be at most 64"},
		{"L003", 3651, "invalid --lookback: must be at most 3650"},
		{"L003", -5, "invalid --lookback: must be at least 0"},
	}
	for _, tt := range tests {
		campaignCode, lookbackDays = tt.code, tt.lookback
		_, err := campaignOptions()
		assert.ErrorContains(t, err, tt.want, tt.code)
	}
}
