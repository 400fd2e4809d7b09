// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package question

import (
	"bytes"
	"strings"
	"text/template"
)

// generationPromptTmpl asks the model for paper-specific viva questions as
// a JSON array.
var generationPromptTmpl = template.Must(template.New("generation").Parse(`You are an expert examiner conducting a viva voce examination on a research paper.

Paper Context:
{{.Context}}

Key Concepts:
{{.Concepts}}

Generate exactly {{.Count}} conceptual questions that:
1. Test deep understanding (prefer "Why" and "How" questions)
2. Are specific to this paper's content and methodology
3. Cannot be answered without reading and understanding the paper
4. Cover different aspects of the paper (methodology, results, implications, etc.)
5. Range from moderate to challenging difficulty
6. Avoid generic questions like "What is the title?" or "Who are the authors?"

For each question, provide:
- text: the question text
- type: one of "why", "how", "explain", "compare", "apply"
- expected_concepts: key concepts that should appear in a good answer
- difficulty: an integer from 1 to 5

Respond with a JSON array of objects with fields text, type, expected_concepts, difficulty. Do not include any text outside the JSON array.

Example response:
[{"text": "Why does the proposed attention approximation preserve accuracy on long sequences?", "type": "why", "expected_concepts": ["linear attention", "kernel approximation"], "difficulty": 4}]
`))

type promptData struct {
	Context  string
	Concepts string
	Count    int
}

// renderPrompt executes the generation prompt template.
func renderPrompt(context []string, concepts []string, count int) (string, error) {
	var buf bytes.Buffer
	err := generationPromptTmpl.Execute(&buf, promptData{
		Context:  strings.Join(context, "\n\n"),
		Concepts: strings.Join(concepts, ", "),
		Count:    count,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
