// Package pattern finds structured identifiers (tax ids, postal codes,
// phones, e-mails, dates) in raw text without any remote call.
package pattern

import (
	"regexp"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// Confidence assigned to every structural match.
const Confidence = 0.95

// Pattern ties field-name tokens to the expression that finds their value.
type Pattern struct {
	Name   string
	Tokens []string
	Regexp *regexp.Regexp
}

// Library is checked in order; the first matching pattern wins.
var Library = []Pattern{
	{Name: "cpf", Tokens: []string{"cpf"}, Regexp: regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)},
	{Name: "cnpj", Tokens: []string{"cnpj"}, Regexp: regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}`)},
	{Name: "cep", Tokens: []string{"cep"}, Regexp: regexp.MustCompile(`\d{5}-?\d{3}`)},
	{Name: "telefone", Tokens: []string{"telefone", "fone", "phone"}, Regexp: regexp.MustCompile(`\(?\d{2}\)?\s?\d{4,5}-?\d{4}`)},
	{Name: "email", Tokens: []string{"email", "e_mail", "e-mail"}, Regexp: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{Name: "data", Tokens: []string{"data", "date"}, Regexp: regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)},
}

// Lookup returns the first pattern whose token appears in the field name.
func Lookup(field string) (Pattern, bool) {
	lower := strings.ToLower(field)
	for _, p := range Library {
		for _, tok := range p.Tokens {
			if strings.Contains(lower, tok) {
				return p, true
			}
		}
	}
	return Pattern{}, false
}

// Extract matches schema fields against the pattern library. It returns the
// fields it found and the text with every matched value removed. Fields are
// visited in sorted order so the result only depends on the input.
func Extract(text string, schema models.Schema) (map[string]models.ExtractedField, string) {
	found := make(map[string]models.ExtractedField)
	remaining := text

	for _, field := range schema.FieldNames() {
		lower := strings.ToLower(field)
		for _, p := range Library {
			if !hasToken(lower, p.Tokens) {
				continue
			}
			match := p.Regexp.FindString(remaining)
			if match == "" {
				continue
			}
			found[field] = models.ExtractedField{
				Value:      match,
				Confidence: Confidence,
				Method:     "pattern:" + p.Name,
				Stage:      models.StagePattern,
			}
			remaining = strings.ReplaceAll(remaining, match, "")
			break
		}
	}
	return found, remaining
}

func hasToken(field string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(field, tok) {
			return true
		}
	}
	return false
}
