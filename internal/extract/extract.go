// Package extract derives a partial clinical record from dialogue turns by
// deterministic rule matching.
//
// It is the pipeline's safety net: when the drafting model fails or returns
// garbage, the rule-extracted record is what the encounter falls back to. The
// rules are tables of substring triggers and label+number patterns over a
// single lower-cased scan buffer; everything it emits is deduplicated and
// lexicographically sorted, so the same dialogue always yields the same
// record.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// trigger maps scan-buffer substrings to a bucket entry.
type trigger struct {
	needles []string
	entry   string
}

// historyTriggers populate the antecedents bucket: medications in course and
// known pathologies.
var historyTriggers = []trigger{
	{[]string{"losart"}, "Losartán (en curso)"},
	{[]string{"furosemida"}, "Furosemida (en curso)"},
	{[]string{"ibuprofeno"}, "Ibuprofeno (reciente)"},
	{[]string{"hipertens"}, "Hipertensión arterial"},
	{[]string{"cardiopat"}, "Cardiopatía conocida"},
	{[]string{"sin alerg", "no alerg"}, "Sin alergias conocidas"},
}

// reviewTriggers populate the review-of-systems bucket.
var reviewTriggers = []trigger{
	{[]string{"tos seca", "tos"}, "Tos"},
	{[]string{"disnea", "falta de aire", "ahog", "dificultad para respirar"}, "Disnea de esfuerzo"},
	{[]string{"crepitantes"}, "Ruidos crepitantes"},
	{[]string{"palpitaciones", "corazón muy rápido", "taquicardia"}, "Palpitaciones"},
	{[]string{"edema", "hinchazón", "tobillos"}, "Edema maleolar"},
	{[]string{"fiebre"}, "Fiebre"},
	{[]string{"orino menos", "orino poco", "diuresis"}, "Diuresis disminuida"},
}

var (
	bpRx = regexp.MustCompile(`\bta\s*:?\s*(\d{2,3}\s*/\s*\d{2,3})`)
	hrRx = regexp.MustCompile(`\bfc\s*:?\s*(\d{2,3})\b`)
	rrRx = regexp.MustCompile(`\bfr\s*:?\s*(\d{2,3})\b`)
	// Temperature is dictated either with an explicit label ("Temp 36.8",
	// "temperatura: 38") or as a bare degree reading ("36.8 °C").
	tempLabelRx = regexp.MustCompile(`\btemp(?:eratura)?\s*:?\s*(3\d(?:[.,]\d+)?)\b`)
	tempRx      = regexp.MustCompile(`\b(3[5-9](?:[.,]\d+)?)\s*°?c\b`)
	spo2Rx      = regexp.MustCompile(`\bsato2\s*:?\s*(\d{2,3})\b`)
)

// FromTurns runs the rule tables over the dialogue and returns the partial
// record. An empty or all-noise dialogue yields an empty record, never an
// error.
func FromTurns(turns []ingest.Turn) record.Record {
	return FromScanText(ScanBuffer(turns))
}

// ScanBuffer joins the turn texts with " . " sentence markers and normalizes
// the result into the lower-cased matching buffer.
func ScanBuffer(turns []ingest.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if txt := strings.TrimSpace(t.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return normalize.ScanText(strings.Join(parts, " . "))
}

// FromScanText extracts a partial record from an already-normalized scan
// buffer. Exposed separately so live turn streams can re-extract
// incrementally.
func FromScanText(scan string) record.Record {
	var rec record.Record
	if strings.TrimSpace(scan) == "" {
		return rec
	}

	rec.History = matchTriggers(scan, historyTriggers)
	rec.SystemsReview = matchTriggers(scan, reviewTriggers)
	rec.Exam = extractExam(scan)
	rec.Alerts = extractAlerts(scan, rec.Exam.SpO2)
	return rec
}

// matchTriggers returns the sorted, deduplicated entries whose needles occur
// in the scan buffer.
func matchTriggers(scan string, triggers []trigger) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tr := range triggers {
		for _, n := range tr.needles {
			if strings.Contains(scan, n) {
				if _, dup := seen[tr.entry]; !dup {
					seen[tr.entry] = struct{}{}
					out = append(out, tr.entry)
				}
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// extractExam pulls labelled vital signs and auscultation findings.
func extractExam(scan string) record.PhysicalExam {
	var ef record.PhysicalExam
	if m := bpRx.FindStringSubmatch(scan); m != nil {
		ef.BP = strings.ReplaceAll(m[1], " ", "")
	}
	if m := hrRx.FindStringSubmatch(scan); m != nil {
		ef.HR = m[1]
	}
	if m := rrRx.FindStringSubmatch(scan); m != nil {
		ef.RR = m[1]
	}
	if m := tempLabelRx.FindStringSubmatch(scan); m != nil {
		ef.Temp = strings.ReplaceAll(m[1], ",", ".")
	} else if m := tempRx.FindStringSubmatch(scan); m != nil {
		ef.Temp = strings.ReplaceAll(m[1], ",", ".")
	}
	if m := spo2Rx.FindStringSubmatch(scan); m != nil {
		ef.SpO2 = m[1]
	}
	if strings.Contains(scan, "crepitantes") {
		ef.Findings = "Crepitantes bibasales."
	}
	return ef
}

// extractAlerts flags the basic danger signs. spo2 is the already-extracted
// saturation value, reused so the numeric threshold matches what lands in
// the exam.
func extractAlerts(scan, spo2 string) []string {
	var alerts []string
	if strings.Contains(scan, "labios morados") || strings.Contains(scan, "cianosis") {
		alerts = append(alerts, "Cianosis")
	}
	if strings.Contains(scan, "síncope") || strings.Contains(scan, "sincope") ||
		strings.Contains(scan, "confusión") || strings.Contains(scan, "confusion") {
		alerts = append(alerts, "Síncope/Confusión")
	}
	if v, err := strconv.Atoi(spo2); err == nil && v < 90 {
		alerts = append(alerts, "SatO2 < 90%")
	}
	sort.Strings(alerts)
	return alerts
}
