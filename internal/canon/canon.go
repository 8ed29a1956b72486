// Package canon normalizes a drafted clinical record into its canonical
// form before it is merged, persisted, or rendered as FHIR.
//
// Every free-text leaf passes through the misheard-term dictionary, vital
// signs are validated against plausibility ranges (implausible values are
// dropped, never guessed), orders and prescriptions are rewritten to
// canonical formulations, medications filed under orders are relocated to
// prescriptions, and a vague chief complaint is enriched from cues found in
// the present-illness narrative. The result never gains information that was
// not in the input; it only cleans, relocates, and removes.
package canon

import (
	"regexp"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// canonRule rewrites text matching rx to a fixed canonical target.
type canonRule struct {
	rx     *regexp.Regexp
	target string
}

// canonOrders rewrites study orders to their canonical names.
var canonOrders = []canonRule{
	{regexp.MustCompile(`(?i)radiograf[íi]a.*t[óo]rax`), "Radiografía de tórax"},
	{regexp.MustCompile(`(?i)\bhemograma\b`), "Hemograma"},
}

// canonMeds rewrites medication mentions to a standard formulation.
var canonMeds = []canonRule{
	{regexp.MustCompile(`(?i)\bparacetamol\b`), "Paracetamol 1 g cada 8 horas por 5 días"},
}

// motivoHints enriches a vague chief complaint from present-illness cues.
var motivoHints = []struct {
	label string
	pats  []*regexp.Regexp
}{
	{"dolor en el pecho", []*regexp.Regexp{regexp.MustCompile(`dolor\s*(en|del)?\s*(el)?\s*(pecho|t[óo]rax)`)}},
	{"tos seca", []*regexp.Regexp{regexp.MustCompile(`\btos\s*seca\b`)}},
	{"fiebre", []*regexp.Regexp{regexp.MustCompile(`\bfiebre\b`), regexp.MustCompile(`\b38[.,]?\s*(°|grados|c)\b`)}},
	{"falta de aire", []*regexp.Regexp{regexp.MustCompile(`\bdisnea\b`), regexp.MustCompile(`falta\s*de\s*aire`)}},
}

// minMotivoLen is the chief-complaint length below which it counts as vague
// and hint enrichment kicks in.
const minMotivoLen = 8

// Apply canonicalizes rec. The input value is not mutated.
func Apply(rec record.Record) record.Record {
	out := rec

	out.ChiefComplaint = normalize.Misheard(out.ChiefComplaint)
	out.PresentIllness = cleanNarrative(out.PresentIllness)
	out.ChiefComplaint = enrichMotivo(out.ChiefComplaint, out.PresentIllness)

	out.History = cleanList(out.History)
	out.SystemsReview = cleanList(out.SystemsReview)
	out.Exam = cleanExam(out.Exam)
	out.Impressions = cleanList(out.Impressions)

	orders := cleanOrders(out.Orders)
	prescriptions := cleanPrescriptions(out.Prescriptions)
	orders, prescriptions = relocateMeds(orders, prescriptions)
	out.Orders = cleanOrdersDedupe(orders)
	out.Prescriptions = dedupePrescriptions(prescriptions)

	out.Alerts = cleanList(out.Alerts)
	out.Plan = normalize.Misheard(out.Plan)
	out.ReadableText = normalize.Misheard(out.ReadableText)
	return out
}

// cleanNarrative normalizes every narrative leaf, dropping sections that
// clean away to nothing.
func cleanNarrative(n *record.Narrative) *record.Narrative {
	if n == nil {
		return nil
	}
	if len(n.Sections) == 0 {
		text := normalize.Misheard(n.Text)
		if text == "" {
			return nil
		}
		return &record.Narrative{Text: text}
	}
	out := &record.Narrative{}
	for _, s := range n.Sections {
		if t := normalize.Misheard(s.Text); t != "" {
			out.Sections = append(out.Sections, record.NarrativeSection{Name: s.Name, Text: t})
		}
	}
	if len(out.Sections) == 0 {
		return nil
	}
	return out
}

// enrichMotivo fills or extends a vague chief complaint with cue phrases
// detected in the combined complaint + narrative text.
func enrichMotivo(motivo string, illness *record.Narrative) string {
	if len([]rune(motivo)) >= minMotivoLen {
		return motivo
	}
	full := strings.ToLower(strings.TrimSpace(motivo + " " + illness.String()))
	var pieces []string
	for _, h := range motivoHints {
		for _, rx := range h.pats {
			if rx.MatchString(full) {
				pieces = append(pieces, h.label)
				break
			}
		}
	}
	if len(pieces) == 0 {
		return motivo
	}
	joined := strings.Join(pieces, ", ")
	return strings.ToUpper(joined[:1]) + joined[1:]
}

// cleanList misheard-normalizes the entries and deduplicates them
// case-insensitively, preserving the first occurrence's casing and order.
func cleanList(items []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		t := normalize.Misheard(it)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cleanOrders(orders []record.Order) []record.Order {
	var out []record.Order
	for _, o := range orders {
		det := normalize.Misheard(o.Detail)
		if det == "" {
			continue
		}
		det = canonText(det, canonOrders)
		out = append(out, record.Order{Code: o.Code, Detail: det})
	}
	return out
}

func cleanOrdersDedupe(orders []record.Order) []record.Order {
	var out []record.Order
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		key := strings.ToLower(o.Detail)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}

func cleanPrescriptions(recipes []record.Prescription) []record.Prescription {
	var out []record.Prescription
	for _, r := range recipes {
		det := normalize.Misheard(r.Detail)
		if det == "" {
			continue
		}
		out = append(out, record.Prescription{Detail: canonText(det, canonMeds)})
	}
	return out
}

func dedupePrescriptions(recipes []record.Prescription) []record.Prescription {
	var out []record.Prescription
	seen := make(map[string]struct{}, len(recipes))
	for _, r := range recipes {
		key := strings.ToLower(r.Detail)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// relocateMeds moves medication mentions filed as orders into the
// prescription list with their canonical formulation.
func relocateMeds(orders []record.Order, recipes []record.Prescription) ([]record.Order, []record.Prescription) {
	var keep []record.Order
	for _, o := range orders {
		moved := false
		for _, m := range canonMeds {
			if m.rx.MatchString(o.Detail) {
				recipes = append(recipes, record.Prescription{Detail: m.target})
				moved = true
				break
			}
		}
		if !moved {
			keep = append(keep, o)
		}
	}
	return keep, recipes
}

// canonText returns the target of the first matching rule, or the input
// unchanged.
func canonText(text string, rules []canonRule) string {
	for _, m := range rules {
		if m.rx.MatchString(text) {
			return m.target
		}
	}
	return text
}
