package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Tesseract reads images with the tesseract CLI in TSV mode.
type Tesseract struct {
	binPath  string
	language string
}

// NewTesseract creates a Tesseract extractor. Empty arguments default to
// "tesseract" and "eng".
func NewTesseract(binPath, language string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{binPath: binPath, language: language}
}

// Extract runs tesseract on path and returns the recognized words with the
// mean word confidence scaled to [0,1].
func (t *Tesseract) Extract(ctx context.Context, path string) (Result, error) {
	cmd := exec.CommandContext(ctx, t.binPath, path, "stdout", "-l", t.language, "tsv")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, eris.Wrapf(err, "ocr: tesseract failed for %s: %s", path, strings.TrimSpace(stderr.String()))
	}

	return parseTSV(stdout.String())
}

// parseTSV reads tesseract's TSV output. Rows with conf -1 are layout rows
// (page, block, line) and carry no word.
func parseTSV(out string) (Result, error) {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "level") {
		return Result{}, eris.New("ocr: tesseract output has no TSV header")
	}

	header := strings.Split(lines[0], "\t")
	confCol, textCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "conf":
			confCol = i
		case "text":
			textCol = i
		}
	}
	if confCol < 0 || textCol < 0 {
		return Result{}, eris.New("ocr: tesseract TSV is missing conf or text columns")
	}

	var words []string
	var sum float64
	var n int
	for _, line := range lines[1:] {
		cols := strings.Split(line, "\t")
		if len(cols) <= confCol {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[confCol]), 64)
		if err != nil || conf < 0 {
			continue
		}
		sum += conf
		n++
		if textCol < len(cols) {
			if w := strings.TrimSpace(cols[textCol]); w != "" {
				words = append(words, w)
			}
		}
	}

	res := Result{Text: strings.Join(words, " ")}
	if n > 0 {
		res.Confidence = sum / float64(n) / 100
	}
	return res, nil
}
