package sbom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// Output formats.
const (
	FormatCycloneDX = "cyclonedx"
	FormatTree      = "tree"
	FormatDOT       = "dot"
	FormatSVG       = "svg"
)

// Formats lists the supported output formats.
var Formats = []string{FormatCycloneDX, FormatTree, FormatDOT, FormatSVG}

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatCycloneDX: true,
	FormatTree:      true,
	FormatDOT:       true,
	FormatSVG:       true,
}

// Stdout is the output path that means standard output.
const Stdout = "-"

// Render serializes res in the given format.
func Render(ctx context.Context, res *scanner.Result, format string, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatCycloneDX, "":
		if err := EncodeCycloneDX(&buf, BuildBOM(res, opts)); err != nil {
			return nil, err
		}
	case FormatTree:
		if err := EncodeTree(&buf, res); err != nil {
			return nil, err
		}
	case FormatDOT:
		buf.WriteString(ToDOT(res))
	case FormatSVG:
		svg, err := RenderSVG(ctx, ToDOT(res))
		if err != nil {
			return nil, err
		}
		buf.Write(svg)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported format %q (want one of %v)", format, Formats)
	}
	return buf.Bytes(), nil
}

// Write renders res and writes it to path, or to stdout when path is "-".
func Write(ctx context.Context, res *scanner.Result, format, path string, opts Options) error {
	data, err := Render(ctx, res, format, opts)
	if err != nil {
		return err
	}
	return WriteFile(path, data, os.Stdout)
}

// WriteFile writes data to path, creating parent directories. The path "-"
// writes to stdout instead.
func WriteFile(path string, data []byte, stdout io.Writer) error {
	if path == Stdout {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
