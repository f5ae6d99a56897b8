package service

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/AnTengye/legalease/backend/model"
)

const (
	clauseFragmentRunes = 60
	// intended upper bound, reported but not enforced
	maxKeyObligations = 5
)

// RiskView is one risk as displayed in a report
type RiskView struct {
	Badge             string          `json:"badge"`
	Level             model.RiskLevel `json:"level"`
	ClauseFragment    string          `json:"clause_fragment"`
	Clause            string          `json:"clause"`
	Description       string          `json:"description"`
	SimplifiedWarning string          `json:"simplified_warning"`
}

// Report is the presentation model of a ContractAnalysis
type Report struct {
	Title                string                  `json:"title"`
	Summary              string                  `json:"summary"`
	SimpleExplanation    string                  `json:"simple_explanation"`
	Parties              []string                `json:"parties"`
	Risks                []RiskView              `json:"risks"`
	RiskCounts           map[model.RiskLevel]int `json:"risk_counts"`
	HighestRisk          model.RiskLevel         `json:"highest_risk,omitempty"`
	Deadlines            []model.KeyDeadline     `json:"deadlines"`
	KeyObligations       []string                `json:"key_obligations"`
	ObligationsOverLimit bool                    `json:"obligations_over_limit"`
	ResetAction          string                  `json:"reset_action"`
}

// BuildReport turns an analysis into its presentation model. Risks keep the
// order the model returned them in.
func BuildReport(a *model.ContractAnalysis, resetAction string) *Report {
	if a == nil {
		return nil
	}

	r := &Report{
		Title:                a.Title,
		Summary:              a.Summary,
		SimpleExplanation:    a.SimpleExplanation,
		Parties:              nonNil(a.Parties),
		Risks:                make([]RiskView, 0, len(a.Risks)),
		RiskCounts:           make(map[model.RiskLevel]int, len(model.RiskLevels)),
		HighestRisk:          a.HighestRisk(),
		Deadlines:            a.Deadlines,
		KeyObligations:       nonNil(a.KeyObligations),
		ObligationsOverLimit: len(a.KeyObligations) > maxKeyObligations,
		ResetAction:          resetAction,
	}
	if r.Deadlines == nil {
		r.Deadlines = []model.KeyDeadline{}
	}

	for _, l := range model.RiskLevels {
		r.RiskCounts[l] = 0
	}
	for _, risk := range a.Risks {
		r.RiskCounts[risk.RiskLevel]++
		r.Risks = append(r.Risks, RiskView{
			Badge:             RiskBadge(risk.RiskLevel),
			Level:             risk.RiskLevel,
			ClauseFragment:    ClauseFragment(risk.Clause),
			Clause:            risk.Clause,
			Description:       risk.Description,
			SimplifiedWarning: risk.SimplifiedWarning,
		})
	}

	return r
}

// RiskBadge is the label shown next to a risk, e.g. "HIGH RISK"
func RiskBadge(level model.RiskLevel) string {
	return fmt.Sprintf("%s RISK", level)
}

// ClauseFragment shortens a clause to its first 60 characters
func ClauseFragment(clause string) string {
	short := TruncateRunes(clause, clauseFragmentRunes)
	if len(short) < len(clause) {
		return short + "..."
	}
	return short
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var reportFuncs = template.FuncMap{
	"rule": func(s string) string { return strings.Repeat("=", len([]rune(s))) },
	"inc":  func(i int) int { return i + 1 },
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(`{{.Title}}
{{rule .Title}}

SUMMARY
{{.Summary}}

IN PLAIN WORDS
{{.SimpleExplanation}}
{{if .Parties}}
PARTIES
{{range .Parties}}  - {{.}}
{{end}}{{end}}
RISKS ({{len .Risks}})
{{range .Risks}}  [{{.Badge}}] "{{.ClauseFragment}}"
      {{.Description}}
      What it means for you: {{.SimplifiedWarning}}
{{else}}  No risks identified.
{{end}}
DEADLINES
{{range .Deadlines}}  - {{.Date}}: {{.Description}}
{{else}}  No deadlines found.
{{end}}
WHAT YOU MUST DO
{{range $i, $o := .KeyObligations}}  {{inc $i}}. {{$o}}
{{else}}  Nothing specific.
{{end}}`))

// RenderText writes a plain-text version of the report
func RenderText(w io.Writer, r *Report) error {
	if r == nil {
		return ErrNoAnalysis
	}
	return reportTemplate.Execute(w, r)
}
