package models

type CheckStatus string

const (
	CheckStatusOK       CheckStatus = "ok"
	CheckStatusWarning  CheckStatus = "warning"
	CheckStatusCritical CheckStatus = "critical"
)

// AlertData is the alert content a check proposes when it finds a problem.
type AlertData struct {
	Title            string    `json:"title"`
	ShortDescription string    `json:"short_description"`
	Impact           string    `json:"impact,omitempty"`
	SuggestedActions []string  `json:"suggested_actions"`
	Severity         Severity  `json:"severity"`
	Type             AlertType `json:"type,omitempty"`
}

// CheckResult is the ephemeral output of one check execution.
// NoData marks "not enough signal to judge": the status is ok but it is
// not evidence of health.
type CheckResult struct {
	Status    CheckStatus  `json:"status"`
	Count     int          `json:"count"`
	AlertData *AlertData   `json:"alert_data,omitempty"`
	Details   AlertDetails `json:"details"`
	NoData    bool         `json:"no_data,omitempty"`
}

func OK(details AlertDetails) *CheckResult {
	return &CheckResult{Status: CheckStatusOK, Details: details}
}

func NoData() *CheckResult {
	return &CheckResult{Status: CheckStatusOK, NoData: true}
}

// IsHealthy reports an ok result that is backed by data.
func (r *CheckResult) IsHealthy() bool {
	return r.Status == CheckStatusOK && !r.NoData
}
