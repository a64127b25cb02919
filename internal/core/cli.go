package core

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ParsedPath is a local file queued for upload. Name is what the server
// will see as the original filename.
type ParsedPath struct {
	FullPath string
	Name     string
}

// ParseArgs validates command line paths. The server keeps a flat
// namespace, so only regular files are accepted.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []ParsedPath

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory"}
		}
		if !info.Mode().IsRegular() {
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file"}
		}

		out = append(out, ParsedPath{FullPath: p, Name: filepath.Base(p)})
	}

	return out, nil
}
