package image

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Preprocessor is one step of the image cleanup applied before OCR.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

var errNilImage = errors.New("input image is nil")

type PreprocessConfig struct {
	MaxWidth        int     `mapstructure:"max_width"`
	DenoiseStrength float64 `mapstructure:"denoise_strength"`
	Contrast        float64 `mapstructure:"contrast"`
	SharpenStrength float64 `mapstructure:"sharpen_strength"`
	// Binarize enables a global threshold; zero leaves the image grey.
	Binarize uint8 `mapstructure:"binarize"`
}

func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		MaxWidth:        2480,
		DenoiseStrength: 0.5,
		Contrast:        20,
		SharpenStrength: 0.5,
	}
}

// Pipeline builds the preprocessing chain for cfg.
func Pipeline(cfg PreprocessConfig) []Preprocessor {
	steps := []Preprocessor{
		NewResizeProcessor(cfg.MaxWidth),
		NewGrayscaleProcessor(),
	}
	if cfg.DenoiseStrength > 0 {
		steps = append(steps, NewDenoiseProcessor(cfg.DenoiseStrength))
	}
	if cfg.Contrast != 0 {
		steps = append(steps, NewContrastProcessor(cfg.Contrast))
	}
	if cfg.SharpenStrength > 0 {
		steps = append(steps, NewSharpenProcessor(cfg.SharpenStrength))
	}
	if cfg.Binarize > 0 {
		steps = append(steps, NewBinarizationProcessor(cfg.Binarize))
	}
	return steps
}

// ResizeProcessor scales wide scans down, keeping the aspect ratio.
type ResizeProcessor struct {
	maxWidth int
}

func NewResizeProcessor(maxWidth int) *ResizeProcessor {
	return &ResizeProcessor{maxWidth: maxWidth}
}

func (p *ResizeProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	if p.maxWidth <= 0 || img.Bounds().Dx() <= p.maxWidth {
		return img, nil
	}
	return imaging.Resize(img, p.maxWidth, 0, imaging.Lanczos), nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	return imaging.Grayscale(img), nil
}

// DenoiseProcessor applies a light gaussian blur.
type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	return imaging.Blur(img, p.strength), nil
}

type ContrastProcessor struct {
	percent float64
}

func NewContrastProcessor(percent float64) *ContrastProcessor {
	return &ContrastProcessor{percent: percent}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	return imaging.AdjustContrast(img, p.percent), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	return imaging.Sharpen(img, p.strength), nil
}

// BinarizationProcessor maps every pixel to black or white.
type BinarizationProcessor struct {
	threshold uint8
}

func NewBinarizationProcessor(threshold uint8) *BinarizationProcessor {
	return &BinarizationProcessor{threshold: threshold}
}

func (p *BinarizationProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errNilImage
	}
	bounds := img.Bounds()
	binary := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if gray.Y > p.threshold {
				binary.SetGray(x, y, color.Gray{Y: 255})
			} else {
				binary.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return binary, nil
}
