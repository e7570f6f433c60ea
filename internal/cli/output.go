package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string) error {
	switch f {
	case formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want json or yaml)", f)
}

// render writes v as indented JSON or as YAML. YAML goes through JSON first so
// field names and custom marshalers match the API.
func render(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// readInput reads path ("-" for stdin) and returns its content as JSON.
// YAML is detected by extension, or by content when the first byte is not
// '{' or '['.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	ext := strings.ToLower(filepath.Ext(path))
	looksJSON := len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
	if ext == ".json" || (ext != ".yaml" && ext != ".yml" && looksJSON) {
		return trimmed, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s as YAML: %w", path, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert %s to JSON: %w", path, err)
	}
	return out, nil
}
