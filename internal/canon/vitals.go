package canon

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// Plausibility ranges for vital signs. Values outside the range are dropped
// rather than clamped: a scribe must never invent a measurement.
const (
	sysMin, sysMax   = 50, 260
	diaMin, diaMax   = 30, 160
	hrMin, hrMax     = 20, 220
	rrMin, rrMax     = 6, 60
	tempMin, tempMax = 30.0, 43.0
	spo2Min, spo2Max = 50, 100
)

var (
	bpPairRx  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*/\s*(\d+(?:[.,]\d+)?)`)
	bpLooseRx = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s+(\d+(?:[.,]\d+)?)`)
	numberRx  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ParseBloodPressure reads a systolic/diastolic pair from spoken or written
// forms ("130/85", "130 sobre 85", "130 85") and validates both values
// against the plausibility ranges. Returns ok=false for anything implausible
// or unparseable.
func ParseBloodPressure(text string) (sys, dia float64, ok bool) {
	t := strings.ToLower(text)
	t = strings.NewReplacer("sobre", "/", "x", "/", "-", "/").Replace(t)
	m := bpPairRx.FindStringSubmatch(t)
	if m == nil {
		m = bpLooseRx.FindStringSubmatch(t)
	}
	if m == nil {
		return 0, 0, false
	}
	sys, err1 := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	dia, err2 := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if sys < sysMin || sys > sysMax || dia < diaMin || dia > diaMax {
		return 0, 0, false
	}
	return sys, dia, true
}

// parseNumber extracts the first number (dot or comma decimal) from text.
func parseNumber(text string) (float64, bool) {
	m := numberRx.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cleanExam validates every vital and normalizes the free-text findings.
// Implausible vitals become empty strings (dropped on encode).
func cleanExam(ef record.PhysicalExam) record.PhysicalExam {
	var out record.PhysicalExam

	if sys, dia, ok := ParseBloodPressure(ef.BP); ok {
		out.BP = fmt.Sprintf("%d/%d", int(math.Round(sys)), int(math.Round(dia)))
	}
	if v, ok := parseNumber(ef.HR); ok && v >= hrMin && v <= hrMax {
		out.HR = strconv.Itoa(int(math.Round(v)))
	}
	if v, ok := parseNumber(ef.RR); ok && v >= rrMin && v <= rrMax {
		out.RR = strconv.Itoa(int(math.Round(v)))
	}
	if v, ok := parseNumber(ef.Temp); ok && v >= tempMin && v <= tempMax {
		out.Temp = formatTemp(v)
	}
	if v, ok := parseNumber(ef.SpO2); ok && v >= spo2Min && v <= spo2Max {
		out.SpO2 = strconv.Itoa(int(math.Round(v)))
	}

	out.Findings = normalize.Misheard(ef.Findings)
	out.Other = normalize.Misheard(ef.Other)
	return out
}

// formatTemp renders a temperature with one decimal, trimming a trailing
// ".0" ("38.5", "37").
func formatTemp(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s
}
