// Package project discovers and validates the files of a Scarb
// project that make up a verification submission bundle.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/stelatos/starkverify/pkg/api"
)

// MaxFileSize is the per-file submission limit.
const MaxFileSize = 20 * 1024 * 1024

var allowedExtensions = map[string]bool{
	".cairo": true,
	".toml":  true,
	".lock":  true,
	".md":    true,
	".txt":   true,
	".json":  true,
}

var allowedBareNames = map[string]bool{
	"LICENSE":      true,
	"README":       true,
	"CHANGELOG":    true,
	"NOTICE":       true,
	"AUTHORS":      true,
	"CONTRIBUTORS": true,
}

// Directories never worth walking: build output and tool caches.
var skippedDirs = map[string]bool{
	"target": true,
	"cache":  true,
}

// Options configures a collection pass.
type Options struct {
	// Root is the project directory holding Scarb.toml.
	Root string

	// IncludeTestFiles keeps test sources in the bundle. Dojo
	// projects always include them regardless of this flag.
	IncludeTestFiles bool

	// IncludeLockFile adds Scarb.lock when present.
	IncludeLockFile bool

	// Excludes are doublestar glob patterns matched against
	// bundle-relative paths.
	Excludes []string
}

// Collection is the validated submission bundle for one project.
type Collection struct {
	// Files maps bundle-relative names to absolute paths.
	Files []api.FileInfo

	// Manifest is the parsed root Scarb.toml.
	Manifest *Manifest

	// Root is the cleaned absolute project root.
	Root string
}

// Collect walks the project root and assembles the submission bundle.
//
// The bundle always contains the root Scarb.toml plus every Cairo
// source not excluded by the options; docs and metadata files with
// allowed types come along. Hidden directories and build output are
// skipped. Every collected file is validated for size and type.
func Collect(opts Options) (*Collection, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	manifestPath := filepath.Join(root, "Scarb.toml")
	manifest, err := ParseManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("project root %s has no readable Scarb.toml: %w", root, err)
	}

	includeTests := opts.IncludeTestFiles || manifest.IsDojo()

	var files []api.FileInfo
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") || skippedDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		if !wantFile(rel, name, opts, includeTests) {
			return nil
		}
		for _, pattern := range opts.Excludes {
			ok, err := doublestar.Match(pattern, rel)
			if err != nil {
				return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
			}
			if ok {
				return nil
			}
		}

		if err := validateFile(rel, path, d); err != nil {
			return err
		}

		files = append(files, api.FileInfo{Name: rel, Path: path})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if !hasManifest(files) {
		return nil, fmt.Errorf("submission bundle for %s is missing Scarb.toml", root)
	}
	if !hasCairoSource(files) {
		return nil, fmt.Errorf("no Cairo sources found under %s", root)
	}

	return &Collection{Files: files, Manifest: manifest, Root: root}, nil
}

// wantFile decides whether a file belongs in the bundle at all;
// validation happens afterwards.
func wantFile(rel, name string, opts Options, includeTests bool) bool {
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case name == "Scarb.toml":
		return true
	case name == "Scarb.lock":
		return opts.IncludeLockFile
	case ext == ".cairo":
		if isTestFile(rel, name) {
			return includeTests
		}
		return true
	case ext == ".md" || ext == ".txt" || ext == ".json" || ext == ".toml":
		return true
	case ext == "" && allowedBareNames[strings.ToUpper(name)]:
		return true
	default:
		return false
	}
}

// isTestFile flags Cairo sources that only matter for local testing:
// anything under a tests directory or named *_test.cairo.
func isTestFile(rel, name string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if seg == "tests" || seg == "test" {
			return true
		}
	}
	return strings.HasSuffix(name, "_test.cairo")
}

func validateFile(rel, path string, d fs.DirEntry) error {
	if strings.Contains(rel, "..") {
		return fmt.Errorf("path %s escapes the project root", rel)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return fmt.Errorf("file %s exceeds maximum size limit of %d bytes (actual: %d bytes)", rel, MaxFileSize, info.Size())
	}

	name := filepath.Base(rel)
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		if !allowedBareNames[strings.ToUpper(name)] {
			return fmt.Errorf("file %s has no recognized type", rel)
		}
		return nil
	}
	if !allowedExtensions[ext] {
		return fmt.Errorf("file %s has invalid file type (extension: %s)", rel, ext)
	}
	return nil
}

func hasManifest(files []api.FileInfo) bool {
	for _, f := range files {
		if f.Name == "Scarb.toml" || strings.HasSuffix(f.Name, "/Scarb.toml") {
			return true
		}
	}
	return false
}

func hasCairoSource(files []api.FileInfo) bool {
	for _, f := range files {
		if strings.HasSuffix(f.Name, ".cairo") {
			return true
		}
	}
	return false
}

// FindContractFile locates the Cairo source declaring the named
// contract module. The match is loose by design: an exact
// `mod <name>` declaration wins, then a file named <name>.cairo,
// then the package entrypoint src/lib.cairo.
func (c *Collection) FindContractFile(contractName string) (string, error) {
	lowered := strings.ToLower(contractName)

	for _, f := range c.Files {
		if !strings.HasSuffix(f.Name, ".cairo") {
			continue
		}
		content, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		if containsContractModule(string(content), contractName) {
			return f.Name, nil
		}
	}

	for _, f := range c.Files {
		base := strings.TrimSuffix(filepath.Base(f.Name), ".cairo")
		if strings.ToLower(base) == lowered {
			return f.Name, nil
		}
	}

	for _, f := range c.Files {
		if f.Name == "src/lib.cairo" || strings.HasSuffix(f.Name, "/src/lib.cairo") {
			return f.Name, nil
		}
	}

	return "", fmt.Errorf("contract %q not found in collected sources", contractName)
}

func containsContractModule(content, contractName string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "mod ") && !strings.HasPrefix(trimmed, "pub mod ") {
			continue
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(trimmed, "pub "), "mod ")
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "{")
		rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")
		if strings.TrimSpace(rest) == contractName {
			return true
		}
	}
	return false
}
