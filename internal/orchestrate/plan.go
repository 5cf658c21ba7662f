package orchestrate

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/model"
)

const plannerPrompt = `You are a vehicle diagnostic planner. Given a driver's complaint,
respond with a JSON array of diagnostic actions. Each action is an object:
  {"type": "...", "target": "...", "reason": "..."}
Valid types: obd_read (target is an OBD2 PID like 010C, or "dtc" for trouble
codes), spec_lookup (target is a DTC like P0420), rag_search (target is a
search phrase), verify_fix (target is a DTC to re-check), require_consent
(target names an operation that must not run without driver approval,
such as clearing stored codes).
Respond with the JSON array only, no prose. Maximum 5 actions.`

// maxPlanActions bounds a plan regardless of what the model returns.
const maxPlanActions = 5

var complaintDTCPattern = regexp.MustCompile(`\b[PBCU][0-9][0-9A-F]{3}\b`)

var validActionTypes = map[string]bool{
	model.ActionOBDRead:        true,
	model.ActionSpecLookup:     true,
	model.ActionRAGSearch:      true,
	model.ActionVerifyFix:      true,
	model.ActionRequireConsent: true,
}

// buildPlan asks the LLM for a plan, falling back to heuristics when the
// model is unavailable or its output cannot be parsed.
func (o *Orchestrator) buildPlan(ctx context.Context, complaint string) ([]model.PlannedAction, []string) {
	hypotheses := hypothesize(complaint)

	if o.llm != nil && o.llm.Enabled() {
		answer, err := o.llm.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: plannerPrompt},
				{Role: llm.RoleUser, Content: complaint},
			},
			Temperature: 0.2,
			MaxTokens:   500,
		})
		if err == nil {
			if plan := parsePlan(answer); len(plan) > 0 {
				return plan, hypotheses
			}
			o.logger.Warn("planner output unparseable, using fallback plan")
		} else {
			o.logger.Warn("planner call failed, using fallback plan", "error", err)
		}
	}

	return fallbackPlan(complaint), hypotheses
}

// parsePlan extracts a JSON action array from model output. Models wrap
// JSON in code fences or prose, so scan for the outermost brackets.
func parsePlan(answer string) []model.PlannedAction {
	raw := extractJSONArray(answer)
	if raw == "" {
		return nil
	}

	var actions []model.PlannedAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil
	}

	valid := actions[:0]
	for _, a := range actions {
		if validActionTypes[a.Type] {
			valid = append(valid, a)
		}
	}
	if len(valid) > maxPlanActions {
		valid = valid[:maxPlanActions]
	}
	return valid
}

// extractJSONArray pulls the first JSON array out of model output,
// handling ``` fences and surrounding prose.
func extractJSONArray(s string) string {
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// fallbackPlan builds a plan from complaint keywords alone.
func fallbackPlan(complaint string) []model.PlannedAction {
	var plan []model.PlannedAction
	lower := strings.ToLower(complaint)

	// Mentioned trouble codes get looked up directly.
	for _, code := range complaintDTCPattern.FindAllString(strings.ToUpper(complaint), 2) {
		plan = append(plan, model.PlannedAction{
			Type:   model.ActionSpecLookup,
			Target: code,
			Reason: "complaint mentions this trouble code",
		})
	}

	// Always pull stored codes; they anchor everything else.
	plan = append(plan, model.PlannedAction{
		Type:   model.ActionOBDRead,
		Target: "dtc",
		Reason: "check for stored trouble codes",
	})

	switch {
	case strings.Contains(lower, "overheat") || strings.Contains(lower, "temperature") || strings.Contains(lower, "coolant"):
		plan = append(plan, model.PlannedAction{
			Type:   model.ActionOBDRead,
			Target: "0105",
			Reason: "complaint suggests a cooling problem",
		})
	case strings.Contains(lower, "idle") || strings.Contains(lower, "stall") || strings.Contains(lower, "rpm"):
		plan = append(plan, model.PlannedAction{
			Type:   model.ActionOBDRead,
			Target: "010C",
			Reason: "complaint suggests an idle problem",
		})
	}

	plan = append(plan, model.PlannedAction{
		Type:   model.ActionRAGSearch,
		Target: complaint,
		Reason: "find known causes for the complaint",
	})

	if strings.Contains(lower, "replaced") || strings.Contains(lower, "fixed") || strings.Contains(lower, "repaired") {
		plan = append(plan, model.PlannedAction{
			Type:   model.ActionVerifyFix,
			Target: "dtc",
			Reason: "confirm the repair cleared the codes",
		})
	}

	// Clearing codes is destructive and never happens unprompted.
	if strings.Contains(lower, "clear") || strings.Contains(lower, "reset") {
		plan = append(plan, model.PlannedAction{
			Type:   model.ActionRequireConsent,
			Target: "clear_codes",
			Reason: "clearing stored codes erases freeze-frame evidence",
		})
	}

	if len(plan) > maxPlanActions {
		plan = plan[:maxPlanActions]
	}
	return plan
}

// hypothesize produces initial hypotheses from complaint keywords.
func hypothesize(complaint string) []string {
	lower := strings.ToLower(complaint)
	var hypotheses []string

	checks := []struct {
		keywords   []string
		hypothesis string
	}{
		{[]string{"overheat", "coolant", "temperature"}, "cooling system fault (thermostat, water pump, low coolant)"},
		{[]string{"idle", "stall", "rough"}, "air/fuel delivery fault (vacuum leak, dirty throttle body, IAC valve)"},
		{[]string{"misfire", "shake", "shudder"}, "ignition fault (spark plugs, coils) or fuel injector fault"},
		{[]string{"won't start", "wont start", "no start", "crank"}, "starting system fault (battery, starter, fuel pump)"},
		{[]string{"smoke", "burning"}, "oil or coolant leak reaching hot surfaces"},
		{[]string{"noise", "knock", "rattle"}, "mechanical wear (bearings, timing components, exhaust hardware)"},
	}

	for _, c := range checks {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				hypotheses = append(hypotheses, c.hypothesis)
				break
			}
		}
	}

	return hypotheses
}
