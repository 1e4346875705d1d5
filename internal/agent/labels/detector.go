package labels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// Options tunes the detection cascade.
type Options struct {
	StripPunctuation  bool          `mapstructure:"strip_punctuation"`
	EnableFuzzy       bool          `mapstructure:"enable_fuzzy"`
	FuzzyThreshold    float64       `mapstructure:"fuzzy_threshold"`
	EnableSemantic    bool          `mapstructure:"enable_semantic"`
	SemanticThreshold float64       `mapstructure:"semantic_threshold"`
	SemanticTimeout   time.Duration `mapstructure:"semantic_timeout"`
	MinLabelLength    int           `mapstructure:"min_label_length"`
	Concurrency       int           `mapstructure:"concurrency"`
}

func DefaultOptions() Options {
	return Options{
		StripPunctuation:  true,
		EnableFuzzy:       true,
		FuzzyThreshold:    0.75,
		EnableSemantic:    false,
		SemanticThreshold: 0.70,
		SemanticTimeout:   5 * time.Second,
		MinLabelLength:    3,
		Concurrency:       4,
	}
}

// Field is the schema entry a strategy looks for.
type Field struct {
	Name        string
	Description string
}

// StrategyFunc finds label spans for one field.
type StrategyFunc func(ctx context.Context, field Field, lines []string, opts Options) ([]models.DetectedLabel, error)

type strategy struct {
	name models.LabelStrategy
	run  StrategyFunc
}

// SemanticCandidate is a document token the embedding service considers a label.
type SemanticCandidate struct {
	Text  string
	Field string
	Score float64
}

// SemanticMatcher is the remote similarity capability behind the last tier.
type SemanticMatcher interface {
	MatchLabels(ctx context.Context, labels models.Schema, text string, threshold float64) ([]SemanticCandidate, error)
}

// Detector runs the strategies in order and stops at the first one that
// finds anything.
type Detector struct {
	opts       Options
	strategies []strategy
	logger     logger.Logger
}

func NewDetector(opts Options, semantic SemanticMatcher, log logger.Logger) *Detector {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	d := &Detector{opts: opts, logger: log.Named("labels")}
	d.strategies = []strategy{
		{name: models.StrategyExact, run: exactMatch},
		{name: models.StrategyNormalized, run: normalizedMatch},
	}
	if opts.EnableFuzzy {
		d.strategies = append(d.strategies, strategy{name: models.StrategyFuzzy, run: fuzzyMatch})
	}
	if opts.EnableSemantic && semantic != nil {
		d.strategies = append(d.strategies, strategy{name: models.StrategySemantic, run: semanticMatch(semantic)})
	}
	return d
}

// Strategies lists the active tiers in cascade order.
func (d *Detector) Strategies() []models.LabelStrategy {
	names := make([]models.LabelStrategy, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.name
	}
	return names
}

// Detect returns the label spans of one field. A failing strategy is logged
// and skipped; only cancellation aborts the cascade.
func (d *Detector) Detect(ctx context.Context, name, description string, lines []string) ([]models.DetectedLabel, error) {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < d.opts.MinLabelLength {
		return nil, nil
	}
	field := Field{Name: name, Description: description}

	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.run(ctx, field, lines, d.opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.FromContext(ctx, d.logger).Warn("Label strategy failed",
				logger.String("field", name),
				logger.String("strategy", string(s.name)),
				logger.Error(err),
			)
			continue
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

// DetectAll runs Detect for every schema field concurrently and returns the
// spans sorted by line and start offset.
func (d *Detector) DetectAll(ctx context.Context, schema models.Schema, lines []string) ([]models.DetectedLabel, error) {
	names := schema.FieldNames()
	perField := make([][]models.DetectedLabel, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			found, err := d.Detect(gctx, name, schema[name], lines)
			if err != nil {
				return fmt.Errorf("failed to detect label %s: %w", name, err)
			}
			perField[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.DetectedLabel
	for _, found := range perField {
		all = append(all, found...)
	}
	SortLabels(all)
	return all, nil
}

// SortLabels orders spans by line index, then start offset.
func SortLabels(detected []models.DetectedLabel) {
	sort.SliceStable(detected, func(i, j int) bool {
		a, b := detected[i], detected[j]
		if a.LineIndex != b.LineIndex {
			return a.LineIndex < b.LineIndex
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Field < b.Field
	})
}

func newLabel(field Field, line string, lineIndex, start, end int, score float64, s models.LabelStrategy) models.DetectedLabel {
	return models.DetectedLabel{
		Field:     field.Name,
		Text:      line[start:end],
		LineIndex: lineIndex,
		Start:     runeOffset(line, start),
		End:       runeOffset(line, end),
		Score:     score,
		Strategy:  s,
	}
}

func exactMatch(_ context.Context, field Field, lines []string, opts Options) ([]models.DetectedLabel, error) {
	re := compilePhrase(field.Name, opts.StripPunctuation)
	var found []models.DetectedLabel
	for i, line := range lines {
		for _, span := range findWholeWord(line, re) {
			found = append(found, newLabel(field, line, i, span[0], span[1], 1.0, models.StrategyExact))
		}
	}
	return found, nil
}

func normalizedMatch(_ context.Context, field Field, lines []string, _ Options) ([]models.DetectedLabel, error) {
	target := Normalize(field.Name)
	if target == "" {
		return nil, nil
	}

	var found []models.DetectedLabel
	for i, line := range lines {
		for _, tok := range tokenize(line) {
			if Normalize(tok.text) == target {
				found = append(found, newLabel(field, line, i, tok.start, tok.end, 0.95, models.StrategyNormalized))
			}
		}
	}
	return found, nil
}

func fuzzyMatch(_ context.Context, field Field, lines []string, opts Options) ([]models.DetectedLabel, error) {
	target := Normalize(field.Name)
	targetLen := utf8.RuneCountInString(target)
	if targetLen == 0 {
		return nil, nil
	}
	minLen := float64(targetLen) * 0.7
	maxLen := float64(targetLen) * 1.3

	var found []models.DetectedLabel
	for i, line := range lines {
		for _, tok := range tokenize(line) {
			word := Normalize(tok.text)
			n := float64(utf8.RuneCountInString(word))
			if word == "" || n < minLen || n > maxLen {
				continue
			}
			if score := Similarity(word, target); score >= opts.FuzzyThreshold {
				found = append(found, newLabel(field, line, i, tok.start, tok.end, score, models.StrategyFuzzy))
			}
		}
	}
	return found, nil
}

func semanticMatch(matcher SemanticMatcher) StrategyFunc {
	return func(ctx context.Context, field Field, lines []string, opts Options) ([]models.DetectedLabel, error) {
		if opts.SemanticTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.SemanticTimeout)
			defer cancel()
		}

		candidates, err := matcher.MatchLabels(ctx, models.Schema{field.Name: field.Description}, strings.Join(lines, "\n"), opts.SemanticThreshold)
		if err != nil {
			return nil, err
		}

		var found []models.DetectedLabel
		for _, c := range candidates {
			if c.Field != field.Name || c.Score < opts.SemanticThreshold {
				continue
			}
			re := compilePhrase(c.Text, false)
			for i, line := range lines {
				for _, span := range findWholeWord(line, re) {
					found = append(found, newLabel(field, line, i, span[0], span[1], c.Score, models.StrategySemantic))
				}
			}
		}
		return found, nil
	}
}
