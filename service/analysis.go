package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/legalease/backend/model"
	"google.golang.org/genai"
)

const analysisInstruction = `Analyze this contract with complete accuracy.
1. Identify the core purpose of the document.
2. Translate the legal jargon into words a child could understand.
3. Identify hidden traps, fees, automatic renewals or unfair clauses.
4. Extract every important date and deadline.

The reader is educated but wants the plain, human version of this legal document.`

// Analyzer produces a structured analysis for a document payload
type Analyzer interface {
	Analyze(ctx context.Context, payload model.DocumentPayload) (*model.ContractAnalysis, error)
}

// AnalysisClient asks the model for a ContractAnalysis, once per call, with
// no retry and no caching.
type AnalysisClient struct {
	model          ModelClient
	timeout        time.Duration
	thinkingBudget int
}

func NewAnalysisClient(m ModelClient, timeout time.Duration, thinkingBudget int) *AnalysisClient {
	return &AnalysisClient{model: m, timeout: timeout, thinkingBudget: thinkingBudget}
}

// AnalysisSchema returns the response schema constraining the model output
func AnalysisSchema() *genai.Schema {
	str := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeString, Description: desc} }

	levels := make([]string, len(model.RiskLevels))
	for i, l := range model.RiskLevels {
		levels[i] = string(l)
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":             str("Formal or descriptive title of the contract"),
			"summary":           str("Professional executive summary for an educated reader"),
			"simpleExplanation": str("The contract's main point explained as if to a 10-year-old"),
			"parties": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Entities involved in the contract",
			},
			"risks": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"clause":            str("The original text of the risky clause"),
						"riskLevel":         {Type: genai.TypeString, Enum: levels},
						"description":       str("Professional explanation of the legal risk"),
						"simplifiedWarning": str("Extremely simple warning of why this matters in daily life"),
					},
					Required:         []string{"clause", "riskLevel", "description", "simplifiedWarning"},
					PropertyOrdering: []string{"clause", "riskLevel", "description", "simplifiedWarning"},
				},
			},
			"deadlines": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"date":        str("Date or relative timeframe mentioned"),
						"description": str("What happens on this date"),
					},
					PropertyOrdering: []string{"date", "description"},
				},
			},
			"keyObligations": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Top 5 things the user MUST do, in simple bullet points",
			},
		},
		Required:         analysisFields,
		PropertyOrdering: analysisFields,
	}
}

var analysisFields = []string{"title", "summary", "simpleExplanation", "parties", "risks", "deadlines", "keyObligations"}

// Analyze sends the payload and the fixed instruction to the model and parses the result
func (c *AnalysisClient) Analyze(ctx context.Context, payload model.DocumentPayload) (*model.ContractAnalysis, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	content, err := documentPart(payload)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{content, genai.NewPartFromText(analysisInstruction)}
	text, err := c.model.GenerateJSON(ctx, parts, AnalysisSchema(), c.thinkingBudget)
	if err != nil {
		return nil, &AnalysisError{Kind: KindServiceFailure, Err: err}
	}

	return ParseAnalysis(text)
}

// documentPart turns the payload into the first request part: the text
// itself, or the decoded image bytes as inline data.
func documentPart(payload model.DocumentPayload) (*genai.Part, error) {
	if !payload.IsImage() {
		return genai.NewPartFromText(payload.Content), nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, &IngestionError{Kind: KindInvalidImage, Err: fmt.Errorf("invalid base64: %w", err)}
	}
	return genai.NewPartFromBytes(raw, payload.MediaType), nil
}

type rawRisk struct {
	Clause            *string          `json:"clause"`
	RiskLevel         *model.RiskLevel `json:"riskLevel"`
	Description       *string          `json:"description"`
	SimplifiedWarning *string          `json:"simplifiedWarning"`
}

type rawAnalysis struct {
	Title             *string              `json:"title"`
	Summary           *string              `json:"summary"`
	SimpleExplanation *string              `json:"simpleExplanation"`
	Parties           *[]string            `json:"parties"`
	Risks             *[]rawRisk           `json:"risks"`
	Deadlines         *[]model.KeyDeadline `json:"deadlines"`
	KeyObligations    *[]string            `json:"keyObligations"`
}

// ParseAnalysis decodes model output into a ContractAnalysis. Empty text,
// invalid JSON, absent required fields and unknown risk levels all fail
// with a malformed-response AnalysisError.
func ParseAnalysis(text string) (*model.ContractAnalysis, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, malformed(errors.New("empty response"))
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, malformed(fmt.Errorf("invalid JSON: %w", err))
	}

	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("title", raw.Title != nil)
	check("summary", raw.Summary != nil)
	check("simpleExplanation", raw.SimpleExplanation != nil)
	check("parties", raw.Parties != nil)
	check("risks", raw.Risks != nil)
	check("deadlines", raw.Deadlines != nil)
	check("keyObligations", raw.KeyObligations != nil)
	if len(missing) > 0 {
		return nil, malformed(fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}

	analysis := &model.ContractAnalysis{
		Title:             *raw.Title,
		Summary:           *raw.Summary,
		SimpleExplanation: *raw.SimpleExplanation,
		Parties:           *raw.Parties,
		Deadlines:         *raw.Deadlines,
		KeyObligations:    *raw.KeyObligations,
		Risks:             make([]model.ContractRisk, 0, len(*raw.Risks)),
	}

	for i, r := range *raw.Risks {
		if r.Clause == nil || r.RiskLevel == nil || r.Description == nil || r.SimplifiedWarning == nil {
			return nil, malformed(fmt.Errorf("risk %d is missing required fields", i))
		}
		if !r.RiskLevel.Valid() {
			return nil, malformed(fmt.Errorf("risk %d has unknown level %q", i, *r.RiskLevel))
		}
		analysis.Risks = append(analysis.Risks, model.ContractRisk{
			Clause:            *r.Clause,
			RiskLevel:         *r.RiskLevel,
			Description:       *r.Description,
			SimplifiedWarning: *r.SimplifiedWarning,
		})
	}

	return analysis, nil
}

func malformed(err error) error {
	return &AnalysisError{Kind: KindMalformedResponse, Err: err}
}

// stripCodeFence removes a surrounding ```json fence some models add
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
