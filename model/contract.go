package model

// RiskLevel is the severity assigned to a flagged clause
type RiskLevel string

// RiskLevel constants
const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevels lists every level from least to most severe
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Valid reports whether the level is one of the known levels
func (l RiskLevel) Valid() bool {
	return l.Severity() > 0
}

// Severity orders levels; unknown levels are 0
func (l RiskLevel) Severity() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// ContractRisk is a clause flagged by the model
type ContractRisk struct {
	Clause            string    `json:"clause"`
	RiskLevel         RiskLevel `json:"riskLevel"`
	Description       string    `json:"description"`
	SimplifiedWarning string    `json:"simplifiedWarning"`
}

// KeyDeadline is a date or timeframe mentioned in the contract.
// Date is free-form and never parsed.
type KeyDeadline struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// ContractAnalysis is the structured result of one analysis request
type ContractAnalysis struct {
	Title             string         `json:"title"`
	Summary           string         `json:"summary"`
	SimpleExplanation string         `json:"simpleExplanation"`
	Parties           []string       `json:"parties"`
	Risks             []ContractRisk `json:"risks"`
	Deadlines         []KeyDeadline  `json:"deadlines"`
	KeyObligations    []string       `json:"keyObligations"`
}

// HighestRisk returns the most severe level present, or "" when there are no risks
func (a *ContractAnalysis) HighestRisk() RiskLevel {
	var highest RiskLevel
	for _, r := range a.Risks {
		if r.RiskLevel.Severity() > highest.Severity() {
			highest = r.RiskLevel
		}
	}
	return highest
}
