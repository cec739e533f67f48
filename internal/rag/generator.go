package rag

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/rs/zerolog/log"
)

// NoInformationPhrase is how the model is told to report a candidate without relevant context.
const NoInformationPhrase = "No se encontró información relevante"

const markerPrompt = `
Eres un asistente imparcial que analiza programas electorales de diferentes candidatos.
Tu tarea es responder a la pregunta del usuario basándote **SOLO** en la información proporcionada por los documentos de cada candidato.
Si no encuentras información sobre un candidato para la pregunta, indícalo claramente como "` + NoInformationPhrase + ` para [Candidato X] sobre este tema."

Responde de forma concisa y estructurada para cada candidato por separado.
Utiliza el siguiente formato para cada candidato:
Candidato [Nombre del Candidato]: [Respuesta basada en su programa]

---
**Pregunta del Usuario:** {{.Question}}

**Contexto de los Candidatos:**
{{.Context}}
---
`

const structuredPrompt = `
Eres un asistente imparcial que analiza programas electorales de diferentes candidatos.
Tu tarea es responder a la pregunta del usuario basándote **SOLO** en la información proporcionada por los documentos de cada candidato.
Si no encuentras información sobre un candidato para la pregunta, indícalo claramente como "` + NoInformationPhrase + ` para [Candidato X] sobre este tema."

Responde de forma concisa, con una entrada por candidato, usando exactamente este JSON:
{"answers": [{"candidate": "<Nombre del Candidato>", "response": "<Respuesta basada en su programa>"}]}

---
**Pregunta del Usuario:** {{.Question}}

**Contexto de los Candidatos:**
{{.Context}}
---
`

var (
	// MarkerTemplate asks for one "Candidato <Name>: <answer>" line per candidate.
	MarkerTemplate = template.Must(template.New("marker").Parse(markerPrompt))
	// StructuredTemplate asks for a JSON answer list.
	StructuredTemplate = template.Must(template.New("structured").Parse(structuredPrompt))
)

// Generator turns a question and its context into one raw model completion.
type Generator struct {
	Client   ai.Completer
	Template *template.Template
}

// NewGenerator picks the structured template when the provider returns JSON.
func NewGenerator(client ai.Completer, structured bool) *Generator {
	t := MarkerTemplate
	if structured {
		t = StructuredTemplate
	}
	return &Generator{Client: client, Template: t}
}

// Prompt renders the template.
func (g *Generator) Prompt(question, contextText string) (string, error) {
	var b strings.Builder
	err := g.Template.Execute(&b, struct {
		Question string
		Context  string
	}{question, contextText})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Generate sends a single completion request. Failures are not retried.
func (g *Generator) Generate(ctx context.Context, question, contextText string) (string, error) {
	prompt, err := g.Prompt(question, contextText)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	raw, err := g.Client.Complete(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("completion failed")
		return "", fmt.Errorf("%w: %w", ai.ErrGenerationFailed, err)
	}
	return raw, nil
}
