// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evaluate

import (
	"bytes"
	"strings"
	"text/template"
)

// evaluationPromptTmpl asks the model to grade one answer as a JSON object.
var evaluationPromptTmpl = template.Must(template.New("evaluation").Parse(`You are evaluating a student's answer to a viva voce question about a research paper.

Question: {{.Question}}

Student Answer: {{.Answer}}

Paper Context (Ground Truth):
{{.Context}}

Expected Key Concepts: {{.Concepts}}

Evaluate the answer based on:
1. Factual Accuracy (40%): Does it contradict the paper? Are there factual errors?
2. Completeness (30%): Does it cover the key concepts?
3. Depth of Understanding (30%): Is it superficial or does it demonstrate deep understanding?

Respond with a single JSON object with these fields:
- score: integer from {{.Min}} to {{.Max}}
- correctness: one of "correct", "partially_correct", or "incorrect"
- feedback: detailed constructive feedback (2-3 sentences)
- factual_errors: list of specific factual errors (empty list if none)
- missing_concepts: list of key concepts not mentioned (empty list if none)

Be strict but fair. An answer is "correct" only if it is factually accurate and covers most key concepts. Do not include any text outside the JSON object.
`))

type promptData struct {
	Question string
	Answer   string
	Context  string
	Concepts string
	Min, Max int
}

func renderPrompt(d promptData) (string, error) {
	var buf bytes.Buffer
	if err := evaluationPromptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func joinTexts(texts []string) string {
	return strings.Join(texts, "\n\n")
}
