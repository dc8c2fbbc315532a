package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	DefaultMaxVersions = 9999

	loaderJSONName = "loader.json"
	metaJSONName   = "meta.json"
)

// ArtifactPaths is the set of output locations for one run. It is built only
// by OutputVersioner.Allocate.
type ArtifactPaths struct {
	Dir        string
	LoaderJSON string
	MetaJSON   string
}

// ExcelPath returns the destination of a plan's spreadsheet inside Dir.
func (a ArtifactPaths) ExcelPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid output file name %q", filename)
	}
	return filepath.Join(a.Dir, filename), nil
}

// OutputVersioner hands out collision-free run directories. Uniqueness comes
// from exclusive directory creation, so concurrent runs in one process or
// across processes never share a directory.
type OutputVersioner struct {
	MaxVersions int
}

func NewOutputVersioner() *OutputVersioner {
	return &OutputVersioner{MaxVersions: DefaultMaxVersions}
}

// Allocate creates parent/base, or the first free parent/base_vN for
// N = 2..MaxVersions.
func (v *OutputVersioner) Allocate(parent, base string) (ArtifactPaths, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return ArtifactPaths{}, fmt.Errorf("failed to create output root %s: %w", parent, err)
	}
	maxVersions := v.MaxVersions
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}

	for n := 1; n <= maxVersions; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_v%d", base, n)
		}
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return ArtifactPaths{
				Dir:        dir,
				LoaderJSON: filepath.Join(dir, loaderJSONName),
				MetaJSON:   filepath.Join(dir, metaJSONName),
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return ArtifactPaths{}, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return ArtifactPaths{}, &OutputAllocationError{Parent: parent, Base: base, Attempts: maxVersions}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeAgreementBaseName derives an output directory name from a stored
// agreement file name: the "<id>__" prefix and the extension are dropped and
// unsafe characters collapse to "_".
func SafeAgreementBaseName(storedFilename, agreementID string) string {
	name := filepath.Base(storedFilename)
	if agreementID != "" {
		name = strings.TrimPrefix(name, agreementID+"__")
	}
	if ext := filepath.Ext(name); ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" {
		return "agreement"
	}
	return name
}
