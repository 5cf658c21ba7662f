package orchestrate

import (
	"context"
	"strings"
	"time"

	"github.com/driveline/driveline/internal/dtc"
	"github.com/driveline/driveline/internal/model"
)

// execute runs one planned action and returns its result. Failures are
// captured in the result, never returned; a diagnosis keeps going with
// whatever data it can get.
func (o *Orchestrator) execute(ctx context.Context, session *model.OrchestrationSession, action model.PlannedAction) model.ActionResult {
	result := model.ActionResult{
		Action:     action,
		ExecutedAt: time.Now().UTC(),
	}

	switch action.Type {
	case model.ActionOBDRead:
		result.Output, result.Error = o.obdRead(ctx, session, action.Target)
	case model.ActionVerifyFix:
		result.Output, result.Error = o.verifyFix(ctx, session, action.Target)
	case model.ActionSpecLookup:
		result.Output, result.Error = o.specLookup(ctx, session, action.Target)
	case model.ActionRAGSearch:
		result.Output = knowledgeSearch(action.Target)
	case model.ActionRequireConsent:
		// Nothing executes here; the composer surfaces the request and
		// the operation stays pending until the driver approves it.
		result.Output = map[string]any{
			"consent_required": true,
			"operation":        action.Target,
		}
	default:
		result.Error = "unknown action type"
	}

	result.Success = result.Error == ""
	return result
}

// obdRead reads live data: either stored trouble codes ("dtc") or one PID.
// Sensor samples are added to the session telemetry buffer.
func (o *Orchestrator) obdRead(ctx context.Context, session *model.OrchestrationSession, target string) (map[string]any, string) {
	if o.scanner == nil || !o.scanner.Connected() {
		return nil, "scanner not connected"
	}

	if strings.EqualFold(target, "dtc") || target == "" {
		codes, err := o.scanner.ReadDTCs(ctx)
		if err != nil {
			return nil, err.Error()
		}
		return map[string]any{"dtc_codes": codes}, ""
	}

	reading, err := o.scanner.ReadSensor(ctx, target)
	if err != nil {
		return nil, err.Error()
	}

	session.AppendTelemetry(model.TelemetryPoint{
		PID:       reading.PID,
		Value:     reading.Value,
		Unit:      reading.Unit,
		Timestamp: time.Now().UTC(),
	})

	return map[string]any{
		"pid":         reading.PID,
		"value":       reading.Value,
		"unit":        reading.Unit,
		"description": reading.Description,
	}, ""
}

// verifyFix re-reads stored codes and reports whether the target code
// (or any code) is still present, then compares the latest telemetry
// against the baseline captured earlier in the session.
func (o *Orchestrator) verifyFix(ctx context.Context, session *model.OrchestrationSession, target string) (map[string]any, string) {
	if o.scanner == nil || !o.scanner.Connected() {
		return nil, "scanner not connected"
	}

	codes, err := o.scanner.ReadDTCs(ctx)
	if err != nil {
		return nil, err.Error()
	}

	cleared := true
	if strings.EqualFold(target, "dtc") || target == "" {
		cleared = len(codes) == 0
	} else {
		for _, code := range codes {
			if strings.EqualFold(code, target) {
				cleared = false
				break
			}
		}
	}

	out := map[string]any{
		"cleared":         cleared,
		"remaining_codes": codes,
	}

	baseline := baselineReadings(session)
	if len(baseline) == 0 {
		out["comparison"] = "no_baseline"
		return out, ""
	}

	improvements, concerns := compareReadings(baseline, latestReadings(session))
	out["comparison"] = "baseline_available"
	out["improvements"] = improvements
	out["concerns"] = concerns
	return out, ""
}

// baselineReadings collects the first sensor value per PID from earlier
// obd_read results in the session's execution history.
func baselineReadings(session *model.OrchestrationSession) map[string]float64 {
	readings := map[string]float64{}
	for _, result := range session.Results {
		if result.Action.Type != model.ActionOBDRead || !result.Success {
			continue
		}
		pid, ok := result.Output["pid"].(string)
		if !ok {
			continue
		}
		value, ok := result.Output["value"].(float64)
		if !ok {
			continue
		}
		if _, seen := readings[pid]; !seen {
			readings[pid] = value
		}
	}

	// Telemetry carried over from an earlier run serves as baseline
	// when this run has no reads of its own yet.
	if len(readings) == 0 {
		for _, point := range session.Telemetry {
			if _, seen := readings[point.PID]; !seen {
				readings[point.PID] = point.Value
			}
		}
	}
	return readings
}

// latestReadings returns the most recent telemetry value per PID.
func latestReadings(session *model.OrchestrationSession) map[string]float64 {
	readings := map[string]float64{}
	for _, point := range session.Telemetry {
		readings[point.PID] = point.Value
	}
	return readings
}

// compareReadings checks coolant temperature (PID 0105) against the
// baseline. Overheating that has come down counts as an improvement;
// a significant rise is flagged.
func compareReadings(baseline, current map[string]float64) (improvements, concerns []string) {
	base, okBase := baseline["0105"]
	cur, okCur := current["0105"]
	if !okBase || !okCur {
		return nil, nil
	}

	switch {
	case cur < base && base > 100:
		improvements = append(improvements, "coolant temperature has come down from overheating levels")
	case cur > base+10:
		concerns = append(concerns, "coolant temperature has risen since the baseline reading")
	}
	return improvements, concerns
}

// specLookup resolves a trouble code against the built-in DTC tables,
// enriched with vehicle specifications decoded from the session
// snapshot's VIN and canned guidance for well-known symptom families.
func (o *Orchestrator) specLookup(ctx context.Context, session *model.OrchestrationSession, target string) (map[string]any, string) {
	out := map[string]any{}

	normalized := dtc.Normalize(target)
	if dtc.IsValid(normalized) {
		out["code"] = normalized
		out["description"] = dtc.Describe(normalized)
		out["category"] = dtc.Categorize(normalized)
		out["severity"] = dtc.Severity(normalized)
		out["known"] = dtc.Known(normalized)
	}

	if info := diagnosticInfo(target); info != nil {
		out["diagnostic_info"] = info
	}

	if specs := o.vehicleSpecs(ctx, session); specs != nil {
		out["vehicle_specifications"] = specs
	}

	if len(out) == 0 {
		return nil, "no specification data for: " + target
	}
	return out, ""
}

// vehicleSpecs decodes the snapshot VIN into detailed specifications.
// Decode failures degrade to a code-only lookup.
func (o *Orchestrator) vehicleSpecs(ctx context.Context, session *model.OrchestrationSession) map[string]string {
	if o.decoder == nil || session.Vehicle == nil || session.Vehicle.VIN == "" {
		return nil
	}

	decoded, err := o.decoder.Decode(ctx, session.Vehicle.VIN)
	if err != nil {
		o.logger.Warn("vin decode for spec lookup failed", "error", err)
		return nil
	}

	return map[string]string{
		"make":          decoded.Make,
		"model":         decoded.Model,
		"year":          decoded.ModelYear,
		"engine":        decoded.EngineModel,
		"displacement":  decoded.EngineDisplacement,
		"fuel_type":     decoded.FuelType,
		"transmission":  decoded.Transmission,
		"drive_type":    decoded.DriveType,
		"vehicle_class": decoded.VehicleType,
	}
}

// diagnosticInfo returns canned causes, steps and cost ranges for
// symptom families that come up constantly.
func diagnosticInfo(target string) map[string]any {
	lower := strings.ToLower(target)

	switch {
	case containsAny(lower, "p0420", "catalyst", "o2", "oxygen"):
		return map[string]any{
			"common_causes":       []string{"Failing catalytic converter", "O2 sensor fault", "Exhaust leak", "Engine running rich or lean"},
			"diagnostic_steps":    []string{"Check O2 sensor readings", "Test catalytic converter efficiency", "Inspect the exhaust for leaks"},
			"typical_repair_cost": "$200-$2500",
		}
	case containsAny(lower, "misfire", "p030", "rough idle"):
		return map[string]any{
			"common_causes":       []string{"Worn spark plugs", "Failing ignition coils", "Clogged fuel injectors", "Low compression"},
			"diagnostic_steps":    []string{"Inspect spark plugs and coils", "Test fuel pressure", "Run a compression test"},
			"typical_repair_cost": "$100-$800",
		}
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
