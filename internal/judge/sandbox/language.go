// Package sandbox compiles and executes submissions against problem test
// cases inside per-submission workspaces.
package sandbox

import (
	"math"

	appErr "arbiter/pkg/errors"
)

// LanguageSpec defines how to compile and run a language.
type LanguageSpec struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileEnabled   bool     `yaml:"compileEnabled"`
	CompileCmdTpl    string   `yaml:"compileCmdTpl"`
	RunCmdTpl        string   `yaml:"runCmdTpl"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}

// ResourceLimit bounds one test case execution.
type ResourceLimit struct {
	TimeMs   int64
	MemoryMb int64
}

// Scaled applies the language multipliers to the base limits. Interpreted
// languages typically carry multipliers above 1.
func (l ResourceLimit) Scaled(lang LanguageSpec) ResourceLimit {
	return ResourceLimit{
		TimeMs:   scaleLimit(l.TimeMs, lang.TimeMultiplier),
		MemoryMb: scaleLimit(l.MemoryMb, lang.MemoryMultiplier),
	}
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

// Registry resolves language specs by id.
type Registry struct {
	languages map[string]LanguageSpec
}

// NewRegistry creates a registry from a config list. Entries without an id
// are skipped.
func NewRegistry(languages []LanguageSpec) *Registry {
	langMap := make(map[string]LanguageSpec, len(languages))
	for _, lang := range languages {
		if lang.ID == "" {
			continue
		}
		langMap[lang.ID] = lang
	}
	return &Registry{languages: langMap}
}

// Get returns the spec for id.
func (r *Registry) Get(id string) (LanguageSpec, error) {
	if id == "" {
		return LanguageSpec{}, appErr.ValidationError("language_id", "required")
	}
	lang, ok := r.languages[id]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", id)
	}
	return lang, nil
}

// DefaultLanguages returns the built-in language set used when the config
// does not override it.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:             "cpp",
			Name:           "C++17 (g++)",
			SourceFile:     "main.cpp",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "g++ -O2 -std=c++17 -o {bin} {src}",
			RunCmdTpl:      "{bin}",
		},
		{
			ID:             "c",
			Name:           "C11 (gcc)",
			SourceFile:     "main.c",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "gcc -O2 -std=c11 -o {bin} {src}",
			RunCmdTpl:      "{bin}",
		},
		{
			ID:               "java",
			Name:             "Java 17",
			SourceFile:       "Main.java",
			BinaryFile:       "Main.class",
			CompileEnabled:   true,
			CompileCmdTpl:    "javac {src}",
			RunCmdTpl:        "java -Xmx{memory_mb}m -cp . Main",
			Env:              []string{"JAVA_TOOL_OPTIONS=-Xss64m"},
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:               "python",
			Name:             "Python 3",
			SourceFile:       "main.py",
			CompileEnabled:   false,
			RunCmdTpl:        "python3 {src}",
			TimeMultiplier:   3,
			MemoryMultiplier: 2,
		},
		{
			ID:             "go",
			Name:           "Go",
			SourceFile:     "main.go",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "go build -o {bin} {src}",
			RunCmdTpl:      "{bin}",
			Env:            []string{"GOCACHE=/tmp/gocache"},
		},
	}
}
