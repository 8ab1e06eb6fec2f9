// Build artifact detection from language-specific configuration files.
// Output directories are kept out of the path index so patterns never
// annotate generated files.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector finds language-specific build output directories
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories scans for build configuration files and extracts output directories
// Returns glob patterns to exclude (e.g., "**/dist/**", "**/target/**")
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var patterns []string
	patterns = append(patterns, bad.detectJavaScriptOutputs()...)
	patterns = append(patterns, bad.detectRustOutputs()...)
	patterns = append(patterns, bad.detectPythonOutputs()...)
	return patterns
}

// detectJavaScriptOutputs reads outDir from package.json scripts and tsconfig.json
func (bad *BuildArtifactDetector) detectJavaScriptOutputs() []string {
	var patterns []string

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "package.json")); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
			Build   struct {
				OutDir string `json:"outDir"`
			} `json:"build"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			for _, script := range pkg.Scripts {
				parts := strings.Fields(script)
				for i, part := range parts {
					if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
						patterns = append(patterns, dirPattern(strings.Trim(parts[i+1], "\"'")))
					}
				}
			}
			if pkg.Build.OutDir != "" {
				patterns = append(patterns, dirPattern(pkg.Build.OutDir))
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "tsconfig.json")); err == nil {
		var tsconfig struct {
			CompilerOptions struct {
				OutDir string `json:"outDir"`
			} `json:"compilerOptions"`
		}
		if json.Unmarshal(data, &tsconfig) == nil && tsconfig.CompilerOptions.OutDir != "" {
			patterns = append(patterns, dirPattern(tsconfig.CompilerOptions.OutDir))
		}
	}

	return patterns
}

// detectRustOutputs reads a custom target-dir from Cargo.toml
func (bad *BuildArtifactDetector) detectRustOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "Cargo.toml"))
	if err != nil {
		return nil
	}
	var cargo struct {
		Build struct {
			TargetDir string `toml:"target-dir"`
		} `toml:"build"`
		Profile map[string]struct {
			TargetDir string `toml:"target-dir"`
		} `toml:"profile"`
	}
	if toml.Unmarshal(data, &cargo) != nil {
		return nil
	}

	var patterns []string
	if cargo.Build.TargetDir != "" {
		patterns = append(patterns, dirPattern(cargo.Build.TargetDir))
	}
	for _, profile := range cargo.Profile {
		if profile.TargetDir != "" {
			patterns = append(patterns, dirPattern(profile.TargetDir))
		}
	}
	return patterns
}

// detectPythonOutputs reads poetry's build target from pyproject.toml
func (bad *BuildArtifactDetector) detectPythonOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}
	var pyproject struct {
		Tool struct {
			Poetry struct {
				Build struct {
					TargetDir string `toml:"target-dir"`
				} `toml:"build"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if toml.Unmarshal(data, &pyproject) != nil || pyproject.Tool.Poetry.Build.TargetDir == "" {
		return nil
	}
	return []string{dirPattern(pyproject.Tool.Poetry.Build.TargetDir)}
}

func dirPattern(dir string) string {
	dir = strings.Trim(filepath.ToSlash(dir), "/")
	dir = strings.TrimPrefix(dir, "./")
	return "**/" + dir + "/**"
}

// DeduplicatePatterns removes duplicate exclusion patterns, keeping first occurrence order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
