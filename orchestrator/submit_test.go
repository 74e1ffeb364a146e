package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idp.evalgo.org/domain"
)

func TestApplyCorrections_MergesAndPinsConfidence(t *testing.T) {
	job := &domain.Job{
		ExtractedData: json.RawMessage(`{"amount":"90.00","vendor":{"name":"Acme"}}`),
		Confidence:    json.RawMessage(`{"amount":55,"vendor":{"name":70}}`),
	}

	err := applyCorrections(job, map[string]interface{}{
		"amount":      "100.00",
		"vendor.name": "Acme Corp",
	})
	require.NoError(t, err)

	var extracted map[string]interface{}
	require.NoError(t, json.Unmarshal(job.ExtractedData, &extracted))
	assert.Equal(t, "100.00", extracted["amount"])
	vendor, ok := extracted["vendor"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", vendor["name"])

	var confidence map[string]interface{}
	require.NoError(t, json.Unmarshal(job.Confidence, &confidence))
	assert.Equal(t, float64(domain.CorrectedConfidence), confidence["amount"])
	vendorConf, ok := confidence["vendor"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(domain.CorrectedConfidence), vendorConf["name"])
}

func TestApplyCorrections_NoopOnEmptyCorrections(t *testing.T) {
	job := &domain.Job{
		ExtractedData: json.RawMessage(`{"amount":"90.00"}`),
		Confidence:    json.RawMessage(`{"amount":55}`),
	}
	before := string(job.ExtractedData)

	err := applyCorrections(job, nil)
	require.NoError(t, err)
	assert.Equal(t, before, string(job.ExtractedData))
}

func TestApplyCorrections_InitializesMissingExtractedData(t *testing.T) {
	job := &domain.Job{}

	err := applyCorrections(job, map[string]interface{}{"amount": "42.00"})
	require.NoError(t, err)

	var extracted map[string]interface{}
	require.NoError(t, json.Unmarshal(job.ExtractedData, &extracted))
	assert.Equal(t, "42.00", extracted["amount"])
}
