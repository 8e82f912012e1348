package pipeline

import (
	"strings"
	"text/template"
)

// Prompt templates for the stage processors. Each stage asks the model for a
// single JSON object so its output can be parsed at the stage boundary.

const drafterSystem = "You are a senior business analyst who turns informal feature requests into well-formed ticket drafts. Reply with a single JSON object and nothing else."

var drafterPrompt = template.Must(template.New("drafter").Parse(`Turn the following feature request into a {{.IssueType}} ticket draft.

Feature request:
{{.UserRequest}}
{{if .Research}}
Related internal documentation:
{{.Research}}
{{end}}
Reply with JSON:
{
  "summary": "one line ticket summary",
  "description": "full description; for Story issue types use the 'As a ..., I want ... so that ...' format",
  "acceptance_criteria": ["Given ... When ... Then ...", "..."],
  "labels": ["..."]
}{{.Feedback}}`))

const reviewerSystem = "You are a rigorous reviewer on a software delivery team. Reply with a single JSON object and nothing else."

var feasibilityPrompt = template.Must(template.New("feasibility").Parse(`Review the feasibility of this ticket draft.

Summary: {{.Summary}}
Description:
{{.Description}}
{{if .SimilarTickets}}
Existing tickets that may overlap:
{{.SimilarTickets}}
{{end}}
Reply with JSON:
{
  "feasible": true,
  "effort_estimate": "S | M | L | XL",
  "risks": ["..."],
  "dependencies": ["..."],
  "notes": "review notes to append to the ticket"
}{{.Feedback}}`))

var testabilityPrompt = template.Must(template.New("testability").Parse(`Review this ticket draft for testability.

Summary: {{.Summary}}
Description:
{{.Description}}

Reply with JSON:
{
  "testable": true,
  "test_scenarios": ["Given ... When ... Then ...", "..."],
  "coverage_notes": "what is hard to verify and why"
}{{.Feedback}}`))

var compliancePrompt = template.Must(template.New("compliance").Parse(`Check this ticket draft against delivery policy: no credentials or personal data in the ticket text, a clear scope, and required labels.

Summary: {{.Summary}}
Description:
{{.Description}}
Labels: {{.Labels}}

Reply with JSON:
{
  "compliant": true,
  "violations": ["..."],
  "required_labels": ["..."]
}{{.Feedback}}`))

// renderPrompt executes a template into a string.
func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
