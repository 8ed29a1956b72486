package record

import (
	"encoding/json"
	"sort"
	"strings"
)

// Narrative is a free-text field that drafting models return either as a
// plain string or as an object of named sections ("inicio", "sintomas", ...).
// Both shapes decode into the same value; encoding reproduces whichever
// shape was populated.
type Narrative struct {
	// Text is the plain-string form. Empty when Sections is used.
	Text string

	// Sections is the structured form, ordered by section name so encoding
	// is deterministic regardless of the model's key order.
	Sections []NarrativeSection
}

// NarrativeSection is one named part of a structured narrative.
type NarrativeSection struct {
	Name string
	Text string
}

// String flattens the narrative to a single line for scan buffers and
// evidence queries.
func (n *Narrative) String() string {
	if n == nil {
		return ""
	}
	if n.Text != "" {
		return n.Text
	}
	parts := make([]string, 0, len(n.Sections))
	for _, s := range n.Sections {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// UnmarshalJSON accepts a JSON string or a flat object of string values.
// Non-string section values are ignored rather than failing the whole
// record.
func (n *Narrative) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n.Text = s
		n.Sections = nil
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	n.Text = ""
	n.Sections = n.Sections[:0]
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		var v string
		if err := json.Unmarshal(obj[k], &v); err != nil {
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		n.Sections = append(n.Sections, NarrativeSection{Name: k, Text: v})
	}
	return nil
}

// MarshalJSON encodes the string form when Sections is empty, otherwise an
// object keyed by section name.
func (n Narrative) MarshalJSON() ([]byte, error) {
	if len(n.Sections) == 0 {
		return json.Marshal(n.Text)
	}
	obj := make(map[string]string, len(n.Sections))
	for _, s := range n.Sections {
		obj[s.Name] = s.Text
	}
	return json.Marshal(obj)
}
