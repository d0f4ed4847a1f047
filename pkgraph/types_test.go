package pkgraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeConfigUnmarshalDecodesAllInputVariants(t *testing.T) {
	raw := []byte(`{
		"version": "V0",
		"inputs": [
			{"name": "greeting", "input": {"Text": {"default": "hello"}}, "required": false},
			{"name": "tone", "input": {"Select": {"options": [{"value": "formal", "label": {"en": "Formal"}}], "default": "formal"}}, "required": true},
			{"name": "payload", "input": "Binary", "required": true}
		],
		"outputs": ["Text"],
		"network_access": true
	}`)

	var cfg NodeConfig
	require.NoError(t, json.Unmarshal(raw, &cfg))

	assert.Equal(t, "V0", cfg.Version)
	assert.Equal(t, []string{"Text"}, cfg.OutputKeys)
	assert.True(t, cfg.NetworkAccess)
	require.Len(t, cfg.Inputs, 3)

	greeting, ok := cfg.InputByName("greeting")
	require.True(t, ok)
	assert.Equal(t, InputText, greeting.Kind)
	require.NotNil(t, greeting.TextDefault)
	assert.Equal(t, "hello", *greeting.TextDefault)

	tone, ok := cfg.InputByName("tone")
	require.True(t, ok)
	assert.Equal(t, InputSelect, tone.Kind)
	require.Len(t, tone.SelectOptions, 1)
	assert.Equal(t, "formal", tone.SelectOptions[0].Value)
	require.NotNil(t, tone.SelectDefault)
	assert.Equal(t, "formal", *tone.SelectDefault)

	payload, ok := cfg.InputByName("payload")
	require.True(t, ok)
	assert.Equal(t, InputBinary, payload.Kind)
	assert.True(t, payload.Required)
}

func TestNodeConfigUnmarshalRejectsUnknownVariant(t *testing.T) {
	raw := []byte(`{"version": "V0", "inputs": [{"name": "x", "input": "Mystery", "required": false}], "outputs": []}`)
	var cfg NodeConfig
	assert.Error(t, json.Unmarshal(raw, &cfg))
}

func TestNodeConfigRoundTripsThroughMarshalUnmarshal(t *testing.T) {
	def := "hi"
	original := NodeConfig{
		Version: "V0",
		Inputs: []NodeInput{
			{Name: "greeting", Kind: InputText, TextDefault: &def},
			{Name: "payload", Kind: InputBinary, Required: true},
		},
		OutputKeys:    []string{"Status"},
		NetworkAccess: true,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded NodeConfig
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}
