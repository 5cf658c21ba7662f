package orchestrate

import (
	"sort"
	"strings"
)

// knowledgeEntry is one note in the built-in repair knowledge base.
type knowledgeEntry struct {
	Topic   string   `json:"topic"`
	Content string   `json:"content"`
	tags    []string
}

// knowledgeBase holds common failure patterns keyed by symptom tags.
// Small and static; a vector store is overkill at this size.
var knowledgeBase = []knowledgeEntry{
	{
		Topic:   "Catalytic converter efficiency (P0420/P0430)",
		Content: "P0420 is usually a worn catalytic converter or a lazy downstream O2 sensor. Check for exhaust leaks before replacing the cat; a failing upstream sensor can also skew the reading.",
		tags:    []string{"p0420", "p0430", "catalytic", "converter", "o2", "oxygen", "exhaust", "emissions"},
	},
	{
		Topic:   "Lean condition (P0171/P0174)",
		Content: "System-too-lean codes most often trace to vacuum leaks, a dirty MAF sensor, or a weak fuel pump. Smoke-test the intake and clean the MAF before fuel-system work.",
		tags:    []string{"p0171", "p0174", "lean", "vacuum", "maf", "fuel", "trim"},
	},
	{
		Topic:   "Random misfire (P0300)",
		Content: "Random multiple misfires point at something shared: fuel pressure, vacuum leak, worn plugs across the board, or low compression. Single-cylinder codes (P0301-P0304) point at that cylinder's plug, coil, or injector.",
		tags:    []string{"p0300", "p0301", "p0302", "p0303", "p0304", "misfire", "shake", "shudder", "rough"},
	},
	{
		Topic:   "Engine overheating",
		Content: "Check coolant level cold, then the thermostat and radiator fans. A coolant temperature reading that climbs past 105°C at idle with fans off usually means a fan circuit fault.",
		tags:    []string{"overheat", "overheating", "coolant", "temperature", "thermostat", "radiator", "fan"},
	},
	{
		Topic:   "Rough idle and stalling",
		Content: "Rough idle with no codes is commonly a dirty throttle body or a small vacuum leak. Idle RPM swinging more than ±100 rpm warrants an intake smoke test.",
		tags:    []string{"idle", "stall", "stalling", "rough", "rpm", "vacuum", "throttle"},
	},
	{
		Topic:   "No-start conditions",
		Content: "Separate crank-no-start from no-crank. No-crank is battery, terminals, or starter. Crank-no-start is spark, fuel, or compression; listen for the fuel pump prime when switching to ON.",
		tags:    []string{"start", "crank", "cranking", "battery", "starter", "fuel pump"},
	},
	{
		Topic:   "EVAP leaks (P0442/P0455)",
		Content: "Small and large EVAP leak codes start with the gas cap: reseat it, clear codes, drive a full cycle. Persistent codes need a smoke test of the EVAP lines and purge valve.",
		tags:    []string{"p0442", "p0455", "evap", "gas cap", "fuel cap", "leak"},
	},
	{
		Topic:   "System voltage (P0562/P0563)",
		Content: "Voltage codes usually mean the charging system: test battery voltage at idle (should be 13.5-14.7V). Below that, suspect the alternator or its belt; above, the voltage regulator.",
		tags:    []string{"p0562", "p0563", "voltage", "battery", "alternator", "charging", "electrical"},
	},
}

// knowledgeSearch scores entries by tag overlap with the query and
// returns the best matches.
func knowledgeSearch(query string) map[string]any {
	words := strings.Fields(strings.ToLower(query))

	type scored struct {
		entry knowledgeEntry
		score int
	}
	var matches []scored

	for _, entry := range knowledgeBase {
		score := 0
		for _, tag := range entry.tags {
			for _, word := range words {
				if strings.Contains(word, tag) || strings.Contains(tag, word) {
					score++
					break
				}
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry, score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > 3 {
		matches = matches[:3]
	}

	results := make([]knowledgeEntry, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.entry)
	}

	return map[string]any{
		"query":   query,
		"results": results,
	}
}
