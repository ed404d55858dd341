package model

import (
	"os"
	"path/filepath"
	"strings"

	"inferd/pkg/types"
)

// WeightsExt is the binary weights format this engine loads.
const WeightsExt = ".gguf"

// ValidateSource checks a model source before any load work happens.
// Remote repos must carry an organization/name separator; filenames must use
// the weights extension; local folders must exist.
func ValidateSource(src types.ModelSource) error {
	switch src.Kind {
	case types.SourceRemote:
		repo := strings.TrimSpace(src.Repo)
		if repo == "" {
			return ErrInvalidConfig("source.repo", "required for remote sources")
		}
		org, name, ok := strings.Cut(repo, "/")
		if !ok || org == "" || name == "" {
			return ErrInvalidConfig("source.repo", "expected organization/name, got "+repo)
		}
		if src.Filename != "" && !strings.HasSuffix(strings.ToLower(src.Filename), WeightsExt) {
			return ErrInvalidConfig("source.filename", "expected a "+WeightsExt+" file, got "+src.Filename)
		}
	case types.SourceLocal:
		if strings.TrimSpace(src.Folder) == "" {
			return ErrInvalidConfig("source.folder", "required for local sources")
		}
		fi, err := os.Stat(src.Folder)
		if err != nil || !fi.IsDir() {
			return ErrNotFound("local folder " + src.Folder)
		}
		if src.Filename != "" && !strings.HasSuffix(strings.ToLower(src.Filename), WeightsExt) {
			return ErrInvalidConfig("source.filename", "expected a "+WeightsExt+" file, got "+src.Filename)
		}
	default:
		return ErrInvalidConfig("source.kind", "unknown source kind "+string(src.Kind))
	}
	return nil
}

// scanFolder finds the weights files in a local folder, sorted by name.
func scanFolder(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), WeightsExt) {
			files = append(files, filepath.Join(abs, e.Name()))
		}
	}
	return files, nil
}
