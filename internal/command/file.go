package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a commands file.
type File struct {
	Commands []Registration `yaml:"commands"`
}

// readFile is the file reader, replaceable in tests.
var readFile = os.ReadFile

// LoadFile reads and validates a YAML commands file.
func LoadFile(path string) ([]Registration, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("command: read %s: %w", path, err)
	}
	regs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("command: %s: %w", path, err)
	}
	return regs, nil
}

// Parse decodes a commands document. Unknown keys are rejected so typos in
// flag names do not silently disable them.
func Parse(data []byte) ([]Registration, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	seen := make(map[string]bool, len(f.Commands))
	for i := range f.Commands {
		r := &f.Commands[i]
		if err := r.Compile(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		if seen[r.Pattern] {
			return nil, fmt.Errorf("command %d: duplicate pattern %q", i, r.Pattern)
		}
		seen[r.Pattern] = true
	}
	return f.Commands, nil
}

// Marshal renders registrations as a commands document.
func Marshal(regs []Registration) ([]byte, error) {
	data, err := yaml.Marshal(File{Commands: regs})
	if err != nil {
		return nil, fmt.Errorf("command: marshal: %w", err)
	}
	return data, nil
}
