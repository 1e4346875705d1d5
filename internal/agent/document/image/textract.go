package image

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// textractAPI is the slice of the Textract client the processor calls.
type textractAPI interface {
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextractConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// MinConfidence filters LINE blocks, on Textract's 0-100 scale.
	MinConfidence float32
	EnableForms   bool
}

// TextractProcessor sends images to AWS Textract. Form key/value pairs are
// emitted as "Key: Value" lines so label detection sees them like printed text.
type TextractProcessor struct {
	client textractAPI
	logger logger.Logger
	config *TextractConfig
}

func NewTextractProcessor(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractProcessor, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newTextractProcessor(client, cfg, log), nil
}

func newTextractProcessor(client textractAPI, cfg *TextractConfig, log logger.Logger) *TextractProcessor {
	if log == nil {
		log = logger.NewNop()
	}
	return &TextractProcessor{client: client, logger: log.Named("textract"), config: cfg}
}

func (p *TextractProcessor) CanProcess(mimeType string) bool {
	return isImageMIME(mimeType)
}

func (p *TextractProcessor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	blocks, err := p.analyze(ctx, data)
	if err != nil {
		return nil, err
	}

	lines, confidence := p.lines(blocks)
	chunks := make([]models.DocumentChunk, 0, 2)
	if len(lines) > 0 {
		chunks = append(chunks, models.DocumentChunk{
			Content: strings.Join(lines, "\n"),
			Metadata: map[string]interface{}{
				"source":     "textract",
				"pageNumber": 1,
				"confidence": confidence,
			},
		})
	}

	if p.config.EnableForms {
		if forms := formLines(blocks); len(forms) > 0 {
			chunks = append(chunks, models.DocumentChunk{
				Content:  strings.Join(forms, "\n"),
				Metadata: map[string]interface{}{"source": "textract", "type": "form"},
			})
		}
	}

	p.logger.Debug("Analyzed document",
		logger.Int("blocks", len(blocks)),
		logger.Int("lines", len(lines)),
	)
	return chunks, nil
}

// analyze runs form analysis when forms are enabled and plain text
// detection otherwise.
func (p *TextractProcessor) analyze(ctx context.Context, data []byte) ([]types.Block, error) {
	doc := &types.Document{Bytes: data}
	if p.config.EnableForms {
		out, err := p.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document:     doc,
			FeatureTypes: []types.FeatureType{types.FeatureTypeForms},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to analyze document: %w", err)
		}
		return out.Blocks, nil
	}

	out, err := p.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{Document: doc})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}
	return out.Blocks, nil
}

func (p *TextractProcessor) Close() error {
	return nil
}

// lines returns LINE blocks above the confidence floor and their mean
// confidence scaled to [0,1].
func (p *TextractProcessor) lines(blocks []types.Block) ([]string, float64) {
	var texts []string
	var total float64
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil || block.Confidence == nil {
			continue
		}
		if *block.Confidence < p.config.MinConfidence {
			continue
		}
		texts = append(texts, *block.Text)
		total += float64(*block.Confidence)
	}
	if len(texts) == 0 {
		return nil, 0
	}
	return texts, total / float64(len(texts)) / 100
}

func formLines(blocks []types.Block) []string {
	byID := make(map[string]types.Block, len(blocks))
	for _, block := range blocks {
		if block.Id != nil {
			byID[*block.Id] = block
		}
	}

	var out []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeKeyValueSet || len(block.EntityTypes) == 0 ||
			block.EntityTypes[0] != types.EntityTypeKey {
			continue
		}
		key := childText(block, byID)
		value := ""
		for _, rel := range block.Relationships {
			if rel.Type != types.RelationshipTypeValue {
				continue
			}
			for _, id := range rel.Ids {
				if valueBlock, ok := byID[id]; ok {
					value = childText(valueBlock, byID)
				}
			}
		}
		if key != "" && value != "" {
			out = append(out, strings.TrimRight(key, ":")+": "+value)
		}
	}
	return out
}

func childText(block types.Block, byID map[string]types.Block) string {
	var words []string
	for _, rel := range block.Relationships {
		if rel.Type != types.RelationshipTypeChild {
			continue
		}
		for _, id := range rel.Ids {
			if child, ok := byID[id]; ok && child.Text != nil {
				words = append(words, *child.Text)
			}
		}
	}
	return strings.Join(words, " ")
}
