package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func FromJSON(data []byte) (Manifest, error) {
	var manifest Manifest
	err := json.Unmarshal(data, &manifest)
	return manifest, err
}

func FromYAML(data []byte) (Manifest, error) {
	var manifest Manifest
	err := yaml.Unmarshal(data, &manifest)
	return manifest, err
}

// Load reads a manifest file. Files ending in .json are read as JSON, anything
// else as YAML
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		manifest, err = FromJSON(data)
	} else {
		manifest, err = FromYAML(data)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("cannot load manifest %s: %w", path, err)
	}
	return manifest, nil
}

func (m *Manifest) ToJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Manifest) ToYAML() ([]byte, error) {
	buf := bytes.Buffer{}
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(m); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
