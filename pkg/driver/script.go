// Package driver provides ready-made dialog.Driver implementations: fixed prompt
// scripts, YAML script files and an interactive line reader.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"llmdialog/pkg/dialog"
)

// Script replays a fixed list of prompts, one per round, then reports Done.
// The prompt for a round is chosen by conversation length, so a retried call
// returns the same prompt.
type Script struct {
	Name    string   `yaml:"name"`
	Prompts []string `yaml:"prompts"`
}

var _ dialog.Driver = (*Script)(nil)

// NewScript returns a script driver for prompts.
func NewScript(name string, prompts ...string) *Script {
	return &Script{Name: name, Prompts: prompts}
}

// Next implements dialog.Driver.
func (s *Script) Next(_ context.Context, history []dialog.Message) dialog.Outcome {
	round := len(history) / 2
	if round >= len(s.Prompts) {
		return dialog.Done()
	}
	return dialog.Say(s.Prompts[round])
}

// scriptFile is the on-disk layout of a batch script.
type scriptFile struct {
	Conversations []Script `yaml:"conversations"`
}

// ParseScripts decodes a YAML batch script:
//
//	conversations:
//	  - name: rust
//	    prompts:
//	      - What is Rust?
//	      - How does ownership work?
func ParseScripts(r io.Reader) ([]*Script, error) {
	var file scriptFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script is empty")
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(file.Conversations) == 0 {
		return nil, errors.New("script defines no conversations")
	}

	scripts := make([]*Script, 0, len(file.Conversations))
	seen := make(map[string]bool, len(file.Conversations))
	for i := range file.Conversations {
		s := file.Conversations[i]
		if strings.TrimSpace(s.Name) == "" {
			s.Name = fmt.Sprintf("conversation-%d", i+1)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate conversation name %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Prompts) == 0 {
			return nil, fmt.Errorf("conversation %q has no prompts", s.Name)
		}
		scripts = append(scripts, &s)
	}
	return scripts, nil
}

// LoadScripts reads and parses a YAML batch script from path.
func LoadScripts(path string) ([]*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseScripts(f)
}
