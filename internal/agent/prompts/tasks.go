package prompts

import "fmt"

// ── Task Templates ──
//
// Each stage receives one user message built from these templates. The
// previous stage's judgment is passed verbatim as JSON.

// AnalysisTask asks the analyst to judge a headline and its description.
func AnalysisTask(title, description string) string {
	if description == "" {
		description = "(sin descripción)"
	}
	return fmt.Sprintf(`Analiza el sentimiento del siguiente titular de noticia:

TITULAR: %q
DESCRIPCIÓN: %q

Sé completamente objetivo y analítico en tu evaluación.`, title, description)
}

// ValidationTask asks the validator to confirm or correct a prior judgment.
func ValidationTask(title, judgmentJSON string) string {
	return fmt.Sprintf(`Revisa y valida el siguiente análisis de sentimiento.

TITULAR ORIGINAL: %q
ANÁLISIS PREVIO:
%s

Responde en el mismo formato JSON.`, title, judgmentJSON)
}

// ExplanationTask asks the explainer to justify a validated judgment.
func ExplanationTask(title, judgmentJSON string) string {
	return fmt.Sprintf(`Toma el análisis validado y crea una explicación clara y concisa.

TITULAR: %q
ANÁLISIS VALIDADO:
%s`, title, judgmentJSON)
}
