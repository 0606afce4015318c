package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseStrictJSON(t *testing.T) {
	raw := `{
		"memorias": [
			{"action": "upsert", "categoria": "FAMILIA", "fato": "Tem filho chamado Pedro de 5 anos", "detalhes": "Pedro está na escolinha", "importancia": 9, "confianca": 0.95}
		]
	}`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "upsert", c.Action)
	assert.Equal(t, "FAMILIA", c.Category)
	assert.Equal(t, "Tem filho chamado Pedro de 5 anos", c.Fact)
	assert.Equal(t, "Pedro está na escolinha", c.Details)
	assert.Equal(t, 9, c.Importance)
	assert.InDelta(t, 0.95, c.Confidence, 1e-9)
}

func TestParseResponseJSONInsideProse(t *testing.T) {
	raw := `Claro! Aqui estão os fatos extraídos:

{"memorias": [{"action": "upsert", "categoria": "CONTEXTO", "fato": "Mora na Florida"}]}

Espero ter ajudado.`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Mora na Florida", candidates[0].Fact)
}

func TestParseResponseTrailingCommas(t *testing.T) {
	raw := `{
		"memorias": [
			{"action": "upsert", "categoria": "FE", "fato": "Converteu em 2019",},
		],
	}`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Converteu em 2019", candidates[0].Fact)
}

func TestParseResponseProseAndTrailingCommas(t *testing.T) {
	raw := `Segue o JSON: {"memorias": [{"fato": "Casou em 2020", "categoria": "EVENTO",},]}`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Casou em 2020", candidates[0].Fact)
}

func TestParseResponseNoiseAroundRepairedJSON(t *testing.T) {
	raw := `texto antes {"memorias": [{"categoria":"FAMILIA","fato":"tem um filho",}]} texto depois`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "FAMILIA", candidates[0].Category)
	assert.Equal(t, "tem um filho", candidates[0].Fact)
}

func TestParseResponseUnrecoverable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "Não encontrei nenhum fato relevante nesta mensagem."},
		{"truncated json", `{"memorias": [{"fato": "Mora`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestParseResponseEmptyList(t *testing.T) {
	candidates, err := ParseResponse(`{"memorias": []}`)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseResponseNormalizesCandidates(t *testing.T) {
	raw := `{"memorias": [
		{"fato": "Tem 34 anos", "categoria": "IDENTIDADE"},
		{"fato": ""},
		{"action": "explode", "categoria": "INVENTADA", "fato": "Algo", "importancia": 99, "confianca": 7.5}
	]}`

	candidates, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Omitted fields get defaults.
	assert.Equal(t, "upsert", candidates[0].Action)
	assert.Equal(t, 5, candidates[0].Importance)
	assert.InDelta(t, 0.8, candidates[0].Confidence, 1e-9)

	// Unknown action and category fall back; out-of-range values clamp.
	assert.Equal(t, "upsert", candidates[1].Action)
	assert.Equal(t, "CONTEXTO", candidates[1].Category)
	assert.Equal(t, 10, candidates[1].Importance)
	assert.InDelta(t, 1.0, candidates[1].Confidence, 1e-9)
}
