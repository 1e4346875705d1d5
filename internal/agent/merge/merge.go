// Package merge combines per-stage field results into the final answer,
// cleans up the selected values and scores the outcome.
package merge

import (
	"regexp"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// PatternCutoff is the minimum confidence for a pattern result to win selection.
const PatternCutoff = 0.8

// normalizePenalty scales the confidence of a value that cleanup changed.
const normalizePenalty = 0.95

var stageWeights = map[models.SourceStage]float64{
	models.StagePattern:    1.0,
	models.StageGenerative: 1.0,
	models.StageStructured: 0.8,
	models.StageMerge:      0.6,
}

const unknownStageWeight = 0.5

var boilerplatePrefixes = []string{
	"Nome:", "Name:", "CPF:", "CNPJ:", "Data:", "Date:",
	"Valor:", "Value:", "Endereço:", "Address:", "Telefone:", "Phone:",
}

var whitespace = regexp.MustCompile(`\s+`)

type formatter struct {
	tokens []string
	format func(digits string) (string, bool)
}

var formatters = []formatter{
	{tokens: []string{"cpf"}, format: func(d string) (string, bool) {
		if len(d) != 11 {
			return "", false
		}
		return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:], true
	}},
	{tokens: []string{"cnpj"}, format: func(d string) (string, bool) {
		if len(d) != 14 {
			return "", false
		}
		return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:], true
	}},
	{tokens: []string{"telefone", "fone", "phone"}, format: func(d string) (string, bool) {
		switch len(d) {
		case 11:
			return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:], true
		case 10:
			return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:], true
		}
		return "", false
	}},
	{tokens: []string{"cep"}, format: func(d string) (string, bool) {
		if len(d) != 8 {
			return "", false
		}
		return d[:5] + "-" + d[5:], true
	}},
}

// Select picks one result per schema field: a pattern result at or above
// PatternCutoff, then a non-empty structured result, then a not-found
// placeholder. The selected value is normalized. The returned map always
// has exactly the schema's keys.
func Select(schema models.Schema, pattern, structured map[string]models.ExtractedField) map[string]models.ExtractedField {
	out := make(map[string]models.ExtractedField, len(schema))
	for name := range schema {
		var selected models.ExtractedField
		if p, ok := pattern[name]; ok && !isBlank(p.Value) && p.Confidence >= PatternCutoff {
			selected = p
		} else if s, ok := structured[name]; ok && !isBlank(s.Value) {
			selected = s
		} else {
			selected = models.NotFound()
		}
		out[name] = Normalize(name, selected)
	}
	return out
}

// Normalize cleans a selected value: whitespace runs collapse, leading
// boilerplate labels are dropped and known identifier formats are
// re-grouped. A changed value costs a small confidence penalty.
func Normalize(field string, f models.ExtractedField) models.ExtractedField {
	if isBlank(f.Value) {
		return f
	}
	original := f.Value
	cleaned := strings.TrimSpace(whitespace.ReplaceAllString(original, " "))

	for _, prefix := range boilerplatePrefixes {
		if len(cleaned) >= len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
		}
	}

	if fm, ok := lookupFormatter(field); ok {
		if formatted, ok := fm.format(digitsOf(cleaned)); ok {
			cleaned = formatted
		}
	}

	if cleaned != original {
		f.Value = cleaned
		f.Confidence *= normalizePenalty
	}
	return f
}

// ApplyCorrections merges generative corrections into current. A field is
// replaced only when the correction has a value and the current field is
// empty or less confident. It returns the names of the replaced fields.
func ApplyCorrections(current, corrections map[string]models.ExtractedField) []string {
	var applied []string
	for name, corr := range corrections {
		if isBlank(corr.Value) {
			continue
		}
		cur, ok := current[name]
		if ok && !isBlank(cur.Value) && corr.Confidence <= cur.Confidence {
			continue
		}
		if corr.Stage == "" {
			corr.Stage = models.StageGenerative
		}
		current[name] = Normalize(name, corr)
		applied = append(applied, name)
	}
	return applied
}

// WeightedConfidence averages the non-empty fields weighted by the stage that
// produced them. It is 0 when every field is empty.
func WeightedConfidence(fields map[string]models.ExtractedField) float64 {
	var sum, weights float64
	for _, f := range fields {
		if isBlank(f.Value) {
			continue
		}
		w := StageWeight(f.Stage)
		sum += clamp01(f.Confidence) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// AverageConfidence is the plain mean confidence of the non-empty fields.
func AverageConfidence(fields map[string]models.ExtractedField) float64 {
	var sum float64
	var n int
	for _, f := range fields {
		if isBlank(f.Value) {
			continue
		}
		sum += f.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CountMissing counts schema fields that are absent or empty.
func CountMissing(schema models.Schema, fields map[string]models.ExtractedField) int {
	missing := 0
	for name := range schema {
		if f, ok := fields[name]; !ok || isBlank(f.Value) {
			missing++
		}
	}
	return missing
}

// StageWeight returns the weight used by WeightedConfidence.
func StageWeight(stage models.SourceStage) float64 {
	if w, ok := stageWeights[stage]; ok {
		return w
	}
	return unknownStageWeight
}

func lookupFormatter(field string) (formatter, bool) {
	lower := strings.ToLower(field)
	for _, fm := range formatters {
		for _, tok := range fm.tokens {
			if strings.Contains(lower, tok) {
				return fm, true
			}
		}
	}
	return formatter{}, false
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
