package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companio/eterna/pkg/types"
)

// fakeGenerator returns a canned response and records the prompts it saw.
type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) GetModel() string { return "fake" }

func TestPipelineExtract(t *testing.T) {
	gen := &fakeGenerator{response: `{"memorias": [{"categoria": "FAMILIA", "fato": "Tem uma filha chamada Ana"}]}`}
	p := NewPipeline(gen, Config{})

	candidates, err := p.Extract(context.Background(), "Minha filha Ana nasceu ontem!", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Tem uma filha chamada Ana", candidates[0].Fact)
}

func TestPipelineSkipsGatedMessages(t *testing.T) {
	gen := &fakeGenerator{response: `{"memorias": []}`}
	p := NewPipeline(gen, Config{})

	candidates, err := p.Extract(context.Background(), "oi!", nil)
	require.NoError(t, err)
	assert.Nil(t, candidates)
	assert.Empty(t, gen.prompts, "gated message must not reach the model")
}

func TestPipelineIncludesCurrentFactsInPrompt(t *testing.T) {
	gen := &fakeGenerator{response: `{"memorias": []}`}
	p := NewPipeline(gen, Config{})

	facts := []types.MemoryRecord{
		{Category: "CONTEXTO", Fact: "Mora no Brasil"},
		{Category: "FAMILIA", Fact: "Casada com João"},
	}
	_, err := p.Extract(context.Background(), "Acabei de me mudar para a Florida", facts)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "[CONTEXTO] Mora no Brasil")
	assert.Contains(t, gen.prompts[0], "[FAMILIA] Casada com João")
	assert.Contains(t, gen.prompts[0], "Usuário: Acabei de me mudar para a Florida")
}

func TestPipelineCapsContextFacts(t *testing.T) {
	gen := &fakeGenerator{response: `{"memorias": []}`}
	p := NewPipeline(gen, Config{ContextFactLimit: 2})

	facts := []types.MemoryRecord{
		{Category: "CONTEXTO", Fact: "Fato um"},
		{Category: "CONTEXTO", Fact: "Fato dois"},
		{Category: "CONTEXTO", Fact: "Fato três"},
	}
	_, err := p.Extract(context.Background(), "Hoje foi um dia muito importante", facts)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Fato dois")
	assert.NotContains(t, gen.prompts[0], "Fato três")
}

func TestPipelineProviderFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	p := NewPipeline(gen, Config{})

	_, err := p.Extract(context.Background(), "Minha filha Ana nasceu ontem!", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPipelineMalformedOutput(t *testing.T) {
	gen := &fakeGenerator{response: "desculpe, não consegui"}
	p := NewPipeline(gen, Config{})

	_, err := p.Extract(context.Background(), "Minha filha Ana nasceu ontem!", nil)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestBuildPromptWithoutFacts(t *testing.T) {
	prompt := BuildPrompt("Casei no sábado", nil)
	assert.True(t, strings.HasSuffix(prompt, "Usuário: Casei no sábado"))
	assert.NotContains(t, prompt, "MEMÓRIAS ATUAIS")
}
