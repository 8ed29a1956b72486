package normalize

import "regexp"

// misheardPasses bounds the dictionary re-passes in [ScanText]. Substitutions
// can enable each other ("par de tamol" -> "paracetamol"), so the table is
// re-applied until the text stabilizes, with a hard cap against rule cycles.
const misheardPasses = 5

type misheardRule struct {
	rx        *regexp.Regexp
	canonical string
}

// misheardRules maps recurring Spanish ASR confusions to canonical clinical
// terms. Order matters: earlier rules may produce text later rules refine.
// Patterns match against a lowercased, space-padded buffer.
var misheardRules = []misheardRule{
	// Frequent symptoms and clinical terms.
	{regexp.MustCompile(`\btoseca\b`), "tos seca"},
	{regexp.MustCompile(`\btos\s*seca\b`), "tos seca"},
	{regexp.MustCompile(`\basculpaci[oó]n\b`), "auscultación"},
	{regexp.MustCompile(`\brespiratorial(?:es)?\b`), "respiratoria"},
	{regexp.MustCompile(`\bdisney[ae]\b`), "disnea"},
	{regexp.MustCompile(`\bensamen\b`), "examen"},
	{regexp.MustCompile(`\bensana\b`), "examen"},
	{regexp.MustCompile(`\b(?:para)?c[ei]tamo+l\b`), "paracetamol"},
	{regexp.MustCompile(`\btamol\b`), "paracetamol"},
	{regexp.MustCompile(`\bpar\s*de\s*tamol\b`), "paracetamol"},
	{regexp.MustCompile(`\bneumoni(?:a\b|á)`), "neumonía"},
	// "olor" heard for "dolor"; \b keeps the real word "dolor" untouched.
	{regexp.MustCompile(`\bolor\b`), "dolor"},
	{regexp.MustCompile(`\bhemogram(?:as|os|a|o)\b`), "hemograma"},
	{regexp.MustCompile(`\b[dt]oras\b`), "tórax"},
	{regexp.MustCompile(`\btorax\b`), "tórax"},
	{regexp.MustCompile(`\b(?:sibilancias?|civilancias|vilancias)\b`), "sibilancias"},
	{regexp.MustCompile(`\bojens(?:es)?\b`), "urgencias"},
	{regexp.MustCompile(`\b[bv]aso\b`), "base"},
	{regexp.MustCompile(`\bder(?:e)?cha\b`), "derecha"},
	{regexp.MustCompile(`\bizq(?:u)?ierda\b`), "izquierda"},
	{regexp.MustCompile(`\bhebre\b`), "fiebre"},

	// Blood pressure, rates, temperature.
	{regexp.MustCompile(`\bpreci[oó]n\b`), "presión"},
	{regexp.MustCompile(`\bperaci[oó]n\b`), "presión"},
	{regexp.MustCompile(`\b[pf]?recuen[cs]ia\b`), "frecuencia"},
	{regexp.MustCompile(`\bcardeac[ao]\b`), "cardíaca"},
	{regexp.MustCompile(`\bcard[ií]aco\b`), "cardíaco"},

	// Studies.
	{regexp.MustCompile(`\bradi[oó]rica\b`), "radiografía"},
	{regexp.MustCompile(`\bradi[oó]graf[íi]a\s+de\s+todas?\b`), "radiografía de tórax"},
	{regexp.MustCompile(`\bradi[oó]graf[íi]a\s+de\s+t[oó]rax\b`), "radiografía de tórax"},

	// Critical mishears.
	{regexp.MustCompile(`\bfalta\s+de\s+alegr[ií]a\b`), "falta de aire"},
	{regexp.MustCompile(`\bd[ei]snea\s+intensa?\b`), "disnea intensa"},
}
