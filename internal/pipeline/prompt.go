package pipeline

import (
	"fmt"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
)

// draftTemperature keeps repeated drafts of the same transcript close to
// each other.
const draftTemperature = 0.3

// systemPrompt instructs the model to emit the clinical record schema and
// nothing else. The schema mirrors the JSON tags in the record package.
const systemPrompt = "Eres un asistente médico experto que transforma turnos DOCTOR/PACIENTE en una HISTORIA CLÍNICA " +
	"completa y estructurada. Devuelve SOLO un JSON VÁLIDO que siga EXACTAMENTE el siguiente esquema. " +
	"Incluye el máximo detalle clínico explícito del transcript y, cuando sea muy obvio por contexto, " +
	"puedes inferir mínimamente (si no hay dato, omite la clave). No repitas tokens como 's s s s'.\n\n" +
	"Esquema requerido:\n" +
	"{\n" +
	"  \"motivo_consulta\": string,\n" +
	"  \"enfermedad_actual\": string | {\n" +
	"      \"sintomas\": string,\n" +
	"      \"evolucion\": string,\n" +
	"      \"factores_riesgo\": [string]\n" +
	"  },\n" +
	"  \"antecedentes\": [string],\n" +
	"  \"examen_fisico\": {\n" +
	"      \"TA\": string, \"Temp\": string, \"FC\": string, \"FR\": string, \"SatO2\": string, \"hallazgos\": string\n" +
	"  },\n" +
	"  \"impresion_dx\": [string],\n" +
	"  \"ordenes\": [{\"detalle\": string}],\n" +
	"  \"recetas\": [{\"detalle\": string}],\n" +
	"  \"alertas\": [string]\n" +
	"}\n\n" +
	"Reglas: 1) Mantén terminología clínica estándar. 2) Extrae y normaliza signos vitales con unidades " +
	"(TA en mmHg, FC en lpm, FR en rpm, Temp en °C, SatO2 en %). 3) Si el examen físico viene sin unidad, añade la apropiada. " +
	"4) No escribas nada fuera del JSON."

// fewShotExample anchors the output shape with one worked consultation.
const fewShotExample = `[TRANSCRIPT]
PACIENTE: Tengo dolor opresivo en el pecho desde hace 2 horas, con sudoración.
DOCTOR: ¿Antecedentes?
PACIENTE: Hipertenso, enalapril.
DOCTOR: Signos: TA 160/95, FC 105, FR 20, Temp 36.8, SatO2 90%.

[JSON]
{
  "motivo_consulta": "Dolor torácico opresivo con sudoración",
  "enfermedad_actual": {
    "sintomas": "Dolor torácico opresivo de 2 horas, con sudoración",
    "evolucion": "Inicio súbito, intensidad moderada-severa",
    "factores_riesgo": ["hipertensión arterial"]
  },
  "antecedentes": ["Hipertensión arterial en tratamiento con enalapril"],
  "examen_fisico": {
    "TA": "160/95 mmHg",
    "Temp": "36.8 °C",
    "FC": "105 lpm",
    "FR": "20 rpm",
    "SatO2": "90 %",
    "hallazgos": ""
  },
  "impresion_dx": ["Síndrome coronario agudo en estudio"],
  "ordenes": [
    {"detalle": "Monitoreo continuo de signos vitales"},
    {"detalle": "Electrocardiograma y troponinas"}
  ],
  "recetas": [{"detalle": "Ácido acetilsalicílico 300 mg VO dosis de carga"}],
  "alertas": ["Alto riesgo cardiovascular"]
}`

// outputHint is repeated right before the transcript because some models
// drift back into prose after a long few-shot block.
const outputHint = "Devuelve ÚNICAMENTE un JSON válido siguiendo el esquema. No incluyas nada más."

// buildMessages assembles the drafting conversation for one transcript.
func buildMessages(templateID string, turns []ingest.Turn) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fewShotExample},
		{Role: "user", Content: outputHint},
		{Role: "user", Content: renderUserPrompt(templateID, turns)},
	}
}

// renderUserPrompt renders the instruction block, the detected template and
// the speaker-attributed transcript.
func renderUserPrompt(templateID string, turns []ingest.Turn) string {
	if templateID == "" {
		templateID = "consulta_general"
	}

	var b strings.Builder
	b.WriteString("Instrucciones:\n")
	b.WriteString("- Devuelve SOLO un JSON válido, sin comentarios ni texto extra.\n")
	b.WriteString("- Esquema esperado: motivo_consulta, enfermedad_actual, antecedentes, examen_fisico, impresion_dx, ordenes, recetas, alertas.\n")
	b.WriteString("- examen_fisico debe incluir TA, Temp, FC, FR, SatO2, hallazgos (si están disponibles).\n")
	b.WriteString("- Usa unidades clínicas estándar (°C, mmHg, lpm, rpm, %).\n")
	b.WriteString("- No inventes datos; si no hay info, omite la clave.\n")
	b.WriteString("- Evita repeticiones tipo 's s s s'.\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "Schema detectado: %s\n", templateID)
	b.WriteString("\n")
	b.WriteString("Transcript:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "- %s: %s\n", t.Speaker, t.Text)
	}
	b.WriteString("\n")
	b.WriteString("Responde SOLO con el JSON final.")
	return b.String()
}
