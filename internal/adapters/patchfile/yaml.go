// Package patchfile reads curated patch sequences stored as YAML.
//
// A file is either a bare list of operations or a document with a
// "patches" key:
//
//	note: HIGH -> HIGH_Horizons migration
//	patches:
//	  - op: add-project
//	    project: HIGH_Horizons
//	  - op: reclassify-column
//	    institution: University of Cape Town
//	    from_project: HIGH
//	    to_project: HIGH_Horizons
package patchfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"partner-registry/internal/domain"

	"gopkg.in/yaml.v3"
)

// File is a decoded patch file.
type File struct {
	Note    string                  `yaml:"note,omitempty"`
	Patches []domain.PatchOperation `yaml:"patches"`
}

// Load reads and validates the patch file at path.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("load patch file: %w", err)
	}
	defer f.Close()

	pf, err := Decode(f)
	if err != nil {
		return File{}, fmt.Errorf("load patch file %q: %w", path, err)
	}
	return pf, nil
}

// Decode parses a patch document and validates every operation. The first
// invalid operation fails the whole file.
func Decode(r io.Reader) (File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return File{}, fmt.Errorf("read: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}

	var pf File
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = strictDecode(raw, &pf.Patches)
	} else {
		err = strictDecode(raw, &pf)
	}
	if err != nil {
		return File{}, fmt.Errorf("decode patches: %w", err)
	}

	var errs []error
	for i, op := range pf.Patches {
		if err := op.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("patch #%d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return File{}, err
	}

	return pf, nil
}

// Encode writes pf as YAML.
func Encode(w io.Writer, pf File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pf); err != nil {
		return fmt.Errorf("encode patches: %w", err)
	}
	return enc.Close()
}

func strictDecode(raw []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
