package merge

import (
	"math"
	"testing"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

func field(value string, conf float64, stage models.SourceStage) models.ExtractedField {
	return models.ExtractedField{Value: value, Confidence: conf, Method: string(stage), Stage: stage}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSelectPriority(t *testing.T) {
	schema := models.Schema{"cpf": "", "nome": "", "cidade": "", "inscricao": ""}
	pattern := map[string]models.ExtractedField{
		"cpf":       {Value: "123.456.789-10", Confidence: 0.95, Method: "pattern:cpf", Stage: models.StagePattern},
		"inscricao": field("101943", 0.5, models.StagePattern),
	}
	structured := map[string]models.ExtractedField{
		"cpf":       field("999.999.999-99", 0.9, models.StageStructured),
		"nome":      field("Maria Silva", 0.88, models.StageStructured),
		"inscricao": field("101943", 0.85, models.StageStructured),
		"extra":     field("ignored", 0.99, models.StageStructured),
	}

	got := Select(schema, pattern, structured)

	if len(got) != len(schema) {
		t.Fatalf("Select() returned %d fields, want %d", len(got), len(schema))
	}
	for name := range schema {
		if _, ok := got[name]; !ok {
			t.Errorf("field %q missing", name)
		}
	}
	if _, ok := got["extra"]; ok {
		t.Error("field outside the schema leaked into the result")
	}
	if got["cpf"].Method != "pattern:cpf" || !approx(got["cpf"].Confidence, 0.95) {
		t.Errorf("cpf = %+v, want pattern result", got["cpf"])
	}
	if got["inscricao"].Stage != models.StageStructured {
		t.Errorf("inscricao = %+v, low-confidence pattern must lose to structured", got["inscricao"])
	}
	if got["nome"].Value != "Maria Silva" {
		t.Errorf("nome = %+v", got["nome"])
	}
	cidade := got["cidade"]
	if cidade.Value != "" || cidade.Confidence != 0 || cidade.Method != models.MethodNotFound {
		t.Errorf("cidade = %+v, want not_found placeholder", cidade)
	}
}

func TestSelectedPatternFieldsMeetCutoff(t *testing.T) {
	schema := models.Schema{"a": "", "b": "", "c": ""}
	pattern := map[string]models.ExtractedField{
		"a": field("x", 0.79, models.StagePattern),
		"b": field("y", 0.8, models.StagePattern),
		"c": field("z", 1.0, models.StagePattern),
	}
	for name, f := range Select(schema, pattern, nil) {
		if f.Stage == models.StagePattern && f.Confidence < PatternCutoff {
			t.Errorf("%s selected from pattern with confidence %v", name, f.Confidence)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		field, in, want string
		penalized       bool
	}{
		{"cpf", "12345678910", "123.456.789-10", true},
		{"cpf", "123.456.789-10", "123.456.789-10", false},
		{"cpf", "1234", "1234", false},
		{"cnpj_empresa", "12345678000190", "12.345.678/0001-90", true},
		{"telefone", "81998765432", "(81) 99876-5432", true},
		{"telefone_fixo", "8133334444", "(81) 3333-4444", true},
		{"cep", "50000100", "50000-100", true},
		{"nome", "  Nome:   Maria   Silva ", "Maria Silva", true},
		{"endereco", "Endereço: Rua A, 10", "Rua A, 10", true},
		{"nome", "Maria Silva", "Maria Silva", false},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.in, func(t *testing.T) {
			got := Normalize(tt.field, field(tt.in, 0.8, models.StageStructured))
			if got.Value != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.field, tt.in, got.Value, tt.want)
			}
			wantConf := 0.8
			if tt.penalized {
				wantConf = 0.8 * 0.95
			}
			if !approx(got.Confidence, wantConf) {
				t.Errorf("confidence = %v, want %v", got.Confidence, wantConf)
			}
		})
	}
}

func TestNormalizeLeavesEmptyFieldAlone(t *testing.T) {
	got := Normalize("cpf", models.NotFound())
	if got != models.NotFound() {
		t.Errorf("Normalize(empty) = %+v", got)
	}
}

func TestApplyCorrections(t *testing.T) {
	current := map[string]models.ExtractedField{
		"nome":      models.NotFound(),
		"apelido":   field("Jose", 0.9, models.StageStructured),
		"cidade":    field("Recife", 0.4, models.StageStructured),
		"categoria": field("A", 0.7, models.StageStructured),
	}
	corrections := map[string]models.ExtractedField{
		"nome":      field("Maria Silva", 0.6, models.StageGenerative),
		"apelido":   field("José", 0.5, models.StageGenerative),
		"cidade":    field("Olinda", 0.75, models.StageGenerative),
		"categoria": field("", 0.99, models.StageGenerative),
	}

	applied := ApplyCorrections(current, corrections)

	if len(applied) != 2 {
		t.Errorf("applied = %v, want nome and cidade", applied)
	}
	if current["nome"].Value != "Maria Silva" || current["nome"].Stage != models.StageGenerative {
		t.Errorf("nome = %+v, empty field must be overwritten", current["nome"])
	}
	if current["apelido"].Value != "Jose" || !approx(current["apelido"].Confidence, 0.9) {
		t.Errorf("apelido = %+v, less confident correction must not win", current["apelido"])
	}
	if current["cidade"].Value != "Olinda" {
		t.Errorf("cidade = %+v, more confident correction must win", current["cidade"])
	}
	if current["categoria"].Value != "A" {
		t.Errorf("categoria = %+v, empty correction must be ignored", current["categoria"])
	}
}

func TestApplyCorrectionsNormalizesValues(t *testing.T) {
	current := map[string]models.ExtractedField{"cpf": models.NotFound()}
	ApplyCorrections(current, map[string]models.ExtractedField{
		"cpf": field("12345678910", 0.9, models.StageGenerative),
	})
	if current["cpf"].Value != "123.456.789-10" {
		t.Errorf("cpf = %+v", current["cpf"])
	}
}

func TestWeightedConfidence(t *testing.T) {
	t.Run("all empty", func(t *testing.T) {
		fields := map[string]models.ExtractedField{"a": models.NotFound(), "b": models.NotFound()}
		if got := WeightedConfidence(fields); got != 0 {
			t.Errorf("WeightedConfidence() = %v, want 0", got)
		}
	})

	t.Run("weights by stage", func(t *testing.T) {
		fields := map[string]models.ExtractedField{
			"a": field("x", 0.9, models.StagePattern),
			"b": field("y", 0.5, models.StageStructured),
			"c": models.NotFound(),
		}
		want := (0.9*1.0 + 0.5*0.8) / (1.0 + 0.8)
		if got := WeightedConfidence(fields); !approx(got, want) {
			t.Errorf("WeightedConfidence() = %v, want %v", got, want)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		stages := []models.SourceStage{models.StagePattern, models.StageStructured, models.StageMerge, models.StageGenerative, "other"}
		for i, s := range stages {
			fields := map[string]models.ExtractedField{
				"a": field("x", float64(i)/4, s),
				"b": field("y", 1, models.StageStructured),
				"c": field("z", 1.4, s),
			}
			if got := WeightedConfidence(fields); got < 0 || got > 1 {
				t.Errorf("WeightedConfidence() = %v, out of [0,1]", got)
			}
		}
	})
}

func TestStageWeight(t *testing.T) {
	tests := map[models.SourceStage]float64{
		models.StagePattern:    1.0,
		models.StageGenerative: 1.0,
		models.StageStructured: 0.8,
		models.StageMerge:      0.6,
		models.StageClassifier: 0.5,
	}
	for stage, want := range tests {
		if got := StageWeight(stage); got != want {
			t.Errorf("StageWeight(%s) = %v, want %v", stage, got, want)
		}
	}
}

func TestCountMissingAndAverage(t *testing.T) {
	schema := models.Schema{"a": "", "b": "", "c": ""}
	fields := map[string]models.ExtractedField{
		"a": field("x", 0.9, models.StagePattern),
		"b": field(" ", 0.3, models.StageStructured),
	}
	if got := CountMissing(schema, fields); got != 2 {
		t.Errorf("CountMissing() = %d, want 2", got)
	}
	if got := AverageConfidence(fields); !approx(got, 0.9) {
		t.Errorf("AverageConfidence() = %v, want 0.9", got)
	}
	if got := AverageConfidence(nil); got != 0 {
		t.Errorf("AverageConfidence(nil) = %v, want 0", got)
	}
}
