package json

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/compose-network/soulbound-harness/internal/infra/filesystem"
)

// Writer writes documents to disk, creating parent directories as needed
type Writer struct {
	indent string
}

// NewWriter returns a writer that indents JSON with two spaces, the layout Hardhat uses
// for artifacts.
func NewWriter() *Writer {
	return &Writer{indent: "  "}
}

// WriteJSON writes data as indented JSON to path
func (w *Writer) WriteJSON(path string, data any) error {
	content, err := json.MarshalIndent(data, "", w.indent)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return w.WriteBytes(path, append(content, '\n'))
}

// WriteBytes writes raw bytes to path
func (w *Writer) WriteBytes(path string, data []byte) error {
	if err := filesystem.EnsureDir(path); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
