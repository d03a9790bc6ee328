package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadFiles compiles CUE files and unifies them into one value. A path that
// names a directory contributes every .cue file directly inside it.
func LoadFiles(paths ...string) (cue.Value, error) {
	files, err := expandCUEPaths(paths)
	if err != nil {
		return cue.Value{}, err
	}
	if len(files) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files in %v", paths)
	}

	ctx := cuecontext.New()
	v := ctx.CompileString("{}")
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return cue.Value{}, fmt.Errorf("reading %s: %w", f, err)
		}
		fv := ctx.CompileBytes(data, cue.Filename(f))
		if err := fv.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		v = v.Unify(fv)
	}
	if err := v.Validate(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// LoadProject loads paths with LoadFiles and compiles the result.
func LoadProject(paths ...string) (*Project, []error) {
	v, err := LoadFiles(paths...)
	if err != nil {
		return nil, []error{err}
	}
	return CompileProject(v)
}

func expandCUEPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.cue"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
