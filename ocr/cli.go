package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"idp.evalgo.org/common"
)

// cliPageResult is the JSON shape CLIBackend expects on stdout: one
// entry per page.
type cliPageResult struct {
	Text  string `json:"text"`
	Boxes []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		X          int     `json:"x"`
		Y          int     `json:"y"`
		Width      int     `json:"width"`
		Height     int     `json:"height"`
	} `json:"boxes"`
}

// CLIBackend shells out to an image-to-text CLI per image, parsing its
// combined stdout and stderr output as JSON, grounded on the teacher's exec.CommandContext +
// CombinedOutput invocation pattern.
type CLIBackend struct {
	Path string // path to the OCR CLI binary
	Args []string
}

// NewCLIBackend builds a CLIBackend invoking binaryPath with extraArgs
// appended before the image path argument.
func NewCLIBackend(binaryPath string, extraArgs ...string) *CLIBackend {
	return &CLIBackend{Path: binaryPath, Args: extraArgs}
}

func (b *CLIBackend) Recognize(ctx context.Context, imagePaths []string) (*Result, error) {
	pages := make([]Page, len(imagePaths))
	for i, path := range imagePaths {
		args := append(append([]string{}, b.Args...), path)
		cmd := exec.CommandContext(ctx, b.Path, args...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return nil, common.FailedToWithDetails("run OCR CLI", "ocr-cli", path, fmt.Errorf("%w: %s", err, output))
		}

		var parsed cliPageResult
		if err := json.Unmarshal(output, &parsed); err != nil {
			return nil, common.ParseError(path, "OCR CLI JSON output", err)
		}

		boxes := make([]TextBox, len(parsed.Boxes))
		for j, bx := range parsed.Boxes {
			boxes[j] = TextBox{
				Text:       bx.Text,
				Confidence: bx.Confidence,
				Box:        BoundingBox{X: bx.X, Y: bx.Y, Width: bx.Width, Height: bx.Height},
			}
		}
		pages[i] = Page{Number: i + 1, Text: parsed.Text, Boxes: boxes, Confidence: averageConfidence(boxes)}
	}
	return buildResult(pages), nil
}
