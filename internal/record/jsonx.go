package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoRecord is returned when model output contains no usable JSON object.
// Callers fall back to the rule-extracted record when they see it.
var ErrNoRecord = errors.New("no usable clinical record in model output")

var (
	// Widest braced span: drafting models wrap the object in prose or code
	// fences, so everything outside the outermost braces is discarded.
	objectRx = regexp.MustCompile(`(?s)\{.*\}`)

	trailingCommaRx = regexp.MustCompile(`,\s*([}\]])`)
)

// FromModelOutput extracts the clinical record from raw LLM output. It finds
// the outermost JSON object, decodes it, and if plain decoding fails retries
// after repairing the frequent model glitches: smart quotes and trailing
// commas. Returns ErrNoRecord when nothing decodable is found.
func FromModelOutput(out string) (Record, error) {
	raw := objectRx.FindString(out)
	if raw == "" {
		return Record{}, fmt.Errorf("%w: no JSON object found", ErrNoRecord)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err == nil {
		return rec, nil
	}

	repaired := repairJSON(raw)
	if err := json.Unmarshal([]byte(repaired), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	return rec, nil
}

// repairJSON fixes the malformations drafting models actually produce.
func repairJSON(s string) string {
	s = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "’", "'", "‘", "'").Replace(s)
	s = trailingCommaRx.ReplaceAllString(s, "$1")
	return s
}
