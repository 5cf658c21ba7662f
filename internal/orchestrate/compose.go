package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/model"
)

const composerPrompt = `You are an automotive diagnostic assistant. You will receive a
driver's complaint and the results of diagnostic actions as JSON. Write a
short plain-language summary of the most likely cause, then up to 3
followup questions the driver should answer, then up to 3 recommended
next steps. Format:
SUMMARY: <one paragraph>
QUESTIONS:
- <question>
RECOMMENDATIONS:
- <step>`

// compose turns executed action results into a report. The LLM writes
// the narrative when available; otherwise the report is assembled from
// the raw findings.
func (o *Orchestrator) compose(ctx context.Context, session *model.OrchestrationSession) *model.DiagnosisReport {
	report := &model.DiagnosisReport{
		Confidence:      session.Confidence(),
		ConsentRequests: pendingConsents(session),
	}

	if o.llm != nil && o.llm.Enabled() {
		findings, err := json.Marshal(session.Results)
		if err == nil {
			answer, err := o.llm.Complete(ctx, llm.CompletionRequest{
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: composerPrompt},
					{Role: llm.RoleUser, Content: fmt.Sprintf("Complaint: %s\n\nFindings: %s", session.Complaint, findings)},
				},
				Temperature: 0.4,
				MaxTokens:   600,
			})
			if err == nil {
				parseComposedReport(answer, report)
				if report.Summary != "" {
					return report
				}
			} else {
				o.logger.Warn("composer call failed, using fallback report", "error", err)
			}
		}
	}

	fallbackReport(session, report)
	return report
}

// parseComposedReport fills the report from the SUMMARY/QUESTIONS/
// RECOMMENDATIONS sections of model output.
func parseComposedReport(answer string, report *model.DiagnosisReport) {
	section := ""
	for _, line := range strings.Split(answer, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		switch {
		case strings.HasPrefix(upper, "SUMMARY:"):
			section = "summary"
			report.Summary = strings.TrimSpace(trimmed[len("SUMMARY:"):])
		case strings.HasPrefix(upper, "QUESTIONS:"):
			section = "questions"
		case strings.HasPrefix(upper, "RECOMMENDATIONS:"):
			section = "recommendations"
		case strings.HasPrefix(trimmed, "-"):
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			if item == "" {
				continue
			}
			switch section {
			case "questions":
				report.Questions = append(report.Questions, item)
			case "recommendations":
				report.Recommendations = append(report.Recommendations, item)
			}
		case trimmed != "" && section == "summary":
			report.Summary += " " + trimmed
		}
	}

	if len(report.Questions) > 3 {
		report.Questions = report.Questions[:3]
	}
	if len(report.Recommendations) > 3 {
		report.Recommendations = report.Recommendations[:3]
	}
}

// pendingConsents collects operations the plan deferred to the driver.
func pendingConsents(session *model.OrchestrationSession) []string {
	var ops []string
	for _, result := range session.Results {
		if result.Action.Type != model.ActionRequireConsent {
			continue
		}
		if op, ok := result.Output["operation"].(string); ok && op != "" {
			ops = append(ops, op)
		}
	}
	return ops
}

// fallbackReport assembles a report directly from the action results.
func fallbackReport(session *model.OrchestrationSession, report *model.DiagnosisReport) {
	var parts []string
	var recommendations []string

	for _, result := range session.Results {
		if !result.Success {
			continue
		}
		switch result.Action.Type {
		case model.ActionOBDRead:
			if codes, ok := result.Output["dtc_codes"].([]string); ok {
				if len(codes) == 0 {
					parts = append(parts, "No stored trouble codes were found.")
				} else {
					parts = append(parts, fmt.Sprintf("Stored trouble codes: %s.", strings.Join(codes, ", ")))
					recommendations = append(recommendations, "Look up the stored codes and address the highest-severity one first.")
				}
			}
		case model.ActionSpecLookup:
			if desc, ok := result.Output["description"].(string); ok {
				parts = append(parts, fmt.Sprintf("%v: %s.", result.Output["code"], desc))
			}
		case model.ActionVerifyFix:
			if cleared, ok := result.Output["cleared"].(bool); ok {
				if cleared {
					parts = append(parts, "The previous fault is no longer present.")
				} else {
					parts = append(parts, "The fault code is still present after the repair.")
					recommendations = append(recommendations, "Re-check the repair; the original fault has not cleared.")
				}
			}
		}
	}

	if len(parts) == 0 {
		report.Summary = "Diagnostic actions could not gather enough data. Connect a scanner and run the diagnosis again."
	} else {
		report.Summary = strings.Join(parts, " ")
	}

	report.Questions = []string{
		"When did the symptom first appear, and does it happen consistently?",
		"Has any recent repair or maintenance been done on the vehicle?",
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "Save a diagnostic snapshot so the readings can be compared over time.")
	}
	report.Recommendations = recommendations

	for _, h := range session.Hypotheses {
		if len(report.Recommendations) >= 3 {
			break
		}
		report.Recommendations = append(report.Recommendations, "Investigate: "+h)
	}
}
