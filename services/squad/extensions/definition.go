// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed extensions.yaml
var defaultDefinitionsYAML []byte

// MaxDefinitionsFileSize bounds override files read from disk.
const MaxDefinitionsFileSize = 1 << 20

// Definition declares one optional extension.
type Definition struct {
	Name            string       `yaml:"name" json:"name" validate:"required,slug,max=64"`
	Label           string       `yaml:"label" json:"label" validate:"required,max=128"`
	Description     string       `yaml:"description" json:"description,omitempty"`
	Category        string       `yaml:"category" json:"category,omitempty" validate:"omitempty,slug"`
	Factory         string       `yaml:"root_class" json:"root_class" validate:"required,slug"`
	RequiredPlugins Requirements `yaml:"required_plugins" json:"required_plugins,omitempty" validate:"dive,required"`
	DefaultActive   bool         `yaml:"default_active" json:"default_active"`
}

// Requirements is an AND list of host plugin requirements. Each entry is an
// OR of "|"-separated plugin slugs.
type Requirements []string

// UnmarshalYAML accepts a single string or a list of strings.
func (r *Requirements) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*r = nil
			return nil
		}
		*r = Requirements{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("required_plugins: expected string or list, line %d", node.Line)
	}
}

// Unmet returns the requirements no active plugin satisfies.
func (r Requirements) Unmet(isActive func(slug string) bool) []string {
	var unmet []string
	for _, req := range r {
		satisfied := false
		for _, alt := range strings.Split(req, "|") {
			if alt = strings.TrimSpace(alt); alt != "" && isActive(alt) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			unmet = append(unmet, req)
		}
	}
	return unmet
}

var (
	definitionValidate *validator.Validate
	slugRe             = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

func init() {
	definitionValidate = validator.New()
	_ = definitionValidate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
}

// Validate checks the definition's fields.
func (d Definition) Validate() error {
	if err := definitionValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.Name, err)
	}
	return nil
}

type definitionsFile struct {
	Extensions []Definition `yaml:"extensions"`
}

// ParseDefinitions decodes a definitions document and validates every
// entry.
func ParseDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file definitionsFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode extension definitions: %w", err)
	}

	var errs []error
	seen := map[string]bool{}
	for _, d := range file.Extensions {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateExtension, d.Name))
		}
		seen[d.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return file.Extensions, nil
}

// DefaultDefinitions returns the embedded built-in registry.
func DefaultDefinitions() ([]Definition, error) {
	return ParseDefinitions(bytes.NewReader(defaultDefinitionsYAML))
}

// LoadDefinitionsFile reads definitions from path.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open extension definitions: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat extension definitions: %w", err)
	}
	if info.Size() > MaxDefinitionsFileSize {
		return nil, fmt.Errorf("extension definitions %s: %d bytes exceeds limit of %d", path, info.Size(), MaxDefinitionsFileSize)
	}
	return ParseDefinitions(f)
}
