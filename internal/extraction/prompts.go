package extraction

import (
	"strings"

	"github.com/companio/eterna/pkg/types"
)

// extractionPrompt instructs the model to emit memory candidates as JSON.
// It is written in Portuguese because the companion's users write in
// Portuguese and facts must be stored in the user's language.
const extractionPrompt = `Você é um sistema de extração de memórias. Sua tarefa é identificar FATOS IMPORTANTES sobre a pessoa que devem ser lembrados PARA SEMPRE.

IMPORTANTE: Você receberá as MEMÓRIAS ATUAIS da pessoa. Use-as para:
1. Detectar se a nova informação CONFLITA com algo existente
2. Decidir se deve ATUALIZAR (supersede) uma memória antiga
3. Evitar duplicar informações que já existem

ANALISE esta conversa e extraia fatos concretos sobre a pessoa.

CATEGORIAS DE MEMÓRIA:
- IDENTIDADE: Nome, apelido, idade, profissão, ONDE MORA (cidade/país)
- FAMILIA: Cônjuge (nome), filhos (nomes, idades), pais, irmãos, relacionamentos
- EVENTO: Acontecimentos importantes (casamento, nascimento, luto, mudança, conquista)
- LUTA: Dificuldades recorrentes (ansiedade, depressão, vício, problemas no casamento)
- VITORIA: Testemunhos, conquistas, superações
- PREFERENCIA: Como gosta de ser tratado, estilo de comunicação
- FE: Denominação, quando se converteu, batismo, igreja, ministério
- CONTEXTO: Situação atual de vida, LOCALIZAÇÃO ATUAL (país/cidade onde está)

CAMPOS QUE SÓ PODEM TER UM VALOR (se mudar, use supersede):
- ONDE MORA: A pessoa só mora em UM lugar por vez
- ESTADO CIVIL: Só pode ser um (casado OU solteiro OU divorciado)
- EMPREGO ATUAL: Só trabalha em um lugar por vez
- IGREJA ATUAL: Só frequenta uma igreja por vez

AÇÕES POSSÍVEIS:
- "upsert": Criar novo fato OU atualizar se já existe similar (PADRÃO)
- "supersede": Substituir um fato antigo por novo (quando informação MUDOU)
- "deactivate": Desativar fato que não é mais verdade

REGRAS CRÍTICAS:
1. Extraia APENAS fatos CONCRETOS e ESPECÍFICOS mencionados pelo usuário
2. NÃO invente ou suponha informações
3. Priorize: nomes de pessoas, datas, eventos marcantes
4. Cada fato deve ser uma frase curta e direta
5. Importância: 1-10 (10 = extremamente importante, 5 = moderado)
6. Confiança: 0.0-1.0 (quão certo você está do fato)

Responda APENAS em JSON válido:
{
  "memorias": [
    {
      "action": "upsert",
      "categoria": "FAMILIA",
      "fato": "Tem filho chamado Pedro de 5 anos",
      "detalhes": "Mencionou que Pedro está na escolinha",
      "importancia": 9,
      "confianca": 0.95
    }
  ]
}

Se não houver fatos novos para extrair, retorne:
{"memorias": []}

CONVERSA PARA ANALISAR:
`

// BuildPrompt assembles the full extraction prompt for one message. The
// user's current active facts are appended so the model can choose supersede
// and deactivate actions instead of piling up contradictions.
func BuildPrompt(message string, currentFacts []types.MemoryRecord) string {
	var b strings.Builder
	b.WriteString(extractionPrompt)
	b.WriteString("Usuário: ")
	b.WriteString(message)

	if len(currentFacts) > 0 {
		b.WriteString("\n\nMEMÓRIAS ATUAIS DA PESSOA:\n")
		for _, rec := range currentFacts {
			b.WriteString("- [")
			b.WriteString(rec.Category)
			b.WriteString("] ")
			b.WriteString(rec.Fact)
			b.WriteString("\n")
		}
	}
	return b.String()
}
