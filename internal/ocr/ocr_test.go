package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-reconcile/internal/config"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t300\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t80\t20\t96.5\tLicense\n" +
	"5\t1\t1\t1\t1\t2\t95\t10\t40\t20\t90\tNo.\n" +
	"5\t1\t1\t1\t1\t3\t140\t10\t60\t20\t83.5\tL-1\n"

func TestNewExtractor_Tesseract(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "tesseract", Binary: "/usr/bin/tesseract"})
	require.NoError(t, err)
	fs, ok := ext.(*FailSoft)
	require.True(t, ok)
	assert.IsType(t, &Tesseract{}, fs.inner)
	assert.InDelta(t, DefaultNeutralConfidence, fs.neutral, 1e-9)
}

func TestNewExtractor_None(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "none", NeutralConfidence: 0.6})
	require.NoError(t, err)

	res, err := ext.Extract(context.Background(), "license.png")
	require.NoError(t, err)
	assert.Equal(t, UnavailableText, res.Text)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestTesseract_Defaults(t *testing.T) {
	tt := NewTesseract("", "")
	assert.Equal(t, "tesseract", tt.binPath)
	assert.Equal(t, "eng", tt.language)

	tt = NewTesseract("/custom/tesseract", "deu")
	assert.Equal(t, "/custom/tesseract", tt.binPath)
	assert.Equal(t, "deu", tt.language)
}

func TestParseTSV(t *testing.T) {
	res, err := parseTSV(sampleTSV)
	require.NoError(t, err)
	assert.Equal(t, "License No. L-1", res.Text)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestParseTSV_NoWords(t *testing.T) {
	res, err := parseTSV("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestParseTSV_NotTSV(t *testing.T) {
	_, err := parseTSV("License No. L-1")
	assert.Error(t, err)
}

func TestTesseract_RunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	tsv := filepath.Join(dir, "out.tsv")
	require.NoError(t, os.WriteFile(tsv, []byte(sampleTSV), 0o644))
	bin := filepath.Join(dir, "tesseract")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\ncat "+tsv+"\n"), 0o755))

	res, err := NewTesseract(bin, "eng").Extract(context.Background(), filepath.Join(dir, "license.png"))
	require.NoError(t, err)
	assert.Equal(t, "License No. L-1", res.Text)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestTesseract_MissingBinary(t *testing.T) {
	_, err := NewTesseract(filepath.Join(t.TempDir(), "missing"), "eng").Extract(context.Background(), "license.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract failed")
}

type stubExtractor struct {
	res Result
	err error
}

func (s stubExtractor) Extract(context.Context, string) (Result, error) { return s.res, s.err }

func TestFailSoft(t *testing.T) {
	ok := NewFailSoft(stubExtractor{res: Result{Text: "L-1", Confidence: 0.92}}, 0.7)
	res, err := ok.Extract(context.Background(), "license.png")
	require.NoError(t, err)
	assert.Equal(t, "L-1", res.Text)

	failing := NewFailSoft(stubExtractor{err: errors.New("exec: not found")}, 0)
	res, err = failing.Extract(context.Background(), "license.png")
	require.NoError(t, err)
	assert.Equal(t, UnavailableText, res.Text)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}
