// Package artifact assembles annotated functions into the per-file output
// and persists it as a JSON array.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/phobologic/gentleman/internal/model"
)

// Header is the file-identity record that opens every artifact.
type Header struct {
	File string `json:"file"`
}

// Artifact is the ordered output for one file: a Header followed by one
// record per function in source order.
type Artifact struct {
	File      string
	Functions []model.FunctionRecord
}

// Assemble builds the artifact for the file at path. The functions are
// used as given; no validation happens here.
func Assemble(path string, fns []model.FunctionRecord) *Artifact {
	return &Artifact{File: filepath.Base(path), Functions: fns}
}

// Records returns the header followed by every function record.
func (a *Artifact) Records() []any {
	out := make([]any, 0, len(a.Functions)+1)
	out = append(out, Header{File: a.File})
	for i := range a.Functions {
		out = append(out, normalize(a.Functions[i]))
	}
	return out
}

// MarshalJSON encodes the artifact as [{"file": ...}, {...}, ...].
func (a *Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Records())
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("artifact: missing file header")
	}
	var h Header
	if err := json.Unmarshal(raw[0], &h); err != nil {
		return fmt.Errorf("artifact: header: %w", err)
	}
	if h.File == "" {
		return errors.New("artifact: missing file header")
	}
	fns := make([]model.FunctionRecord, len(raw)-1)
	for i, r := range raw[1:] {
		if err := json.Unmarshal(r, &fns[i]); err != nil {
			return fmt.Errorf("artifact: record %d: %w", i+1, err)
		}
	}
	a.File, a.Functions = h.File, fns
	return nil
}

// normalize replaces nil slices so every key encodes as a list.
func normalize(fn model.FunctionRecord) model.FunctionRecord {
	if fn.Parameters == nil {
		fn.Parameters = []model.Parameter{}
	}
	if fn.Calls == nil {
		fn.Calls = []string{}
	}
	if fn.CalledBy == nil {
		fn.CalledBy = []string{}
	}
	if fn.Tags == nil {
		fn.Tags = []string{}
	}
	return fn
}

// OutputName returns the artifact file name for base and version n.
// Version 0 is unsuffixed.
func OutputName(base string, n int) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if n == 0 {
		return stem + "_func_def.json"
	}
	return fmt.Sprintf("%s_func_def_%d.json", stem, n)
}

// maxVersions bounds the search for a free versioned name.
const maxVersions = 10000

// WriteVersioned writes a into dir under the first free versioned name and
// returns the path written. Existing artifacts are never overwritten.
func WriteVersioned(dir string, a *Artifact) (string, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding artifact: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	for n := 0; n < maxVersions; n++ {
		path := filepath.Join(dir, OutputName(a.File, n))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free artifact name for %s in %s", a.File, dir)
}
