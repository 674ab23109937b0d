package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// readItems loads a list of loose item maps from a JSON or YAML file. JSON
// numbers are kept as json.Number.
func readItems(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return parseItems(data, filepath.Ext(path))
}

func parseItems(data []byte, ext string) ([]map[string]any, error) {
	var items []map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode yaml items: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode json items: %w", err)
		}
	}
	if items == nil {
		items = []map[string]any{}
	}
	return items, nil
}
