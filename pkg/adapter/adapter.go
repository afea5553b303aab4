// Package adapter defines the static registry of supported coding-agent CLI
// tools and the preflight checks that probe for their availability.
//
// Each adapter is a capability set: how to launch an interactive session for a
// task, how to recognize completion, and how to probe the binary. New adapters
// are added by extending the registry, never by branching on type inside the
// session manager.
package adapter

import "fmt"

// Type identifies one supported coding-agent CLI tool.
type Type string

// Supported adapter types.
const (
	TypeClaude Type = "claude"
	TypeCodex  Type = "codex"
	TypeGemini Type = "gemini"
	TypeAider  Type = "aider"
	TypeShell  Type = "shell"
)

// Spec is the capability set for one adapter.
type Spec struct {
	Type Type

	// Binary is the executable probed for and launched.
	Binary string

	// ProbeArgs are passed to Binary for the bounded install probe.
	ProbeArgs []string

	// InstallCommand is remediation guidance shown when the probe fails.
	InstallCommand string

	// DocsURL points at the tool's install documentation.
	DocsURL string

	// CompletionText, when non-empty, is sentinel output that marks the
	// session completed even while the process lingers. Process exit remains
	// the universal completion signal for every adapter.
	CompletionText string

	// launchArgs builds the argv appended after Binary to start an
	// interactive session working on the given task.
	launchArgs func(task string) []string
}

// LaunchCommand returns the full argv for starting a session on task.
func (s Spec) LaunchCommand(task string) []string {
	return append([]string{s.Binary}, s.launchArgs(task)...)
}

// registry is the static adapter table. Order is the deterministic candidate
// order used by ranked selection tie-breaking.
//
//nolint:gochecknoglobals // static capability registry resolved at link time
var registry = []Spec{
	{
		Type:           TypeClaude,
		Binary:         "claude",
		ProbeArgs:      []string{"--version"},
		InstallCommand: "npm install -g @anthropic-ai/claude-code",
		DocsURL:        "https://docs.anthropic.com/en/docs/claude-code",
		launchArgs:     func(task string) []string { return []string{task} },
	},
	{
		Type:           TypeCodex,
		Binary:         "codex",
		ProbeArgs:      []string{"--version"},
		InstallCommand: "npm install -g @openai/codex",
		DocsURL:        "https://github.com/openai/codex",
		launchArgs:     func(task string) []string { return []string{task} },
	},
	{
		Type:           TypeGemini,
		Binary:         "gemini",
		ProbeArgs:      []string{"--version"},
		InstallCommand: "npm install -g @google/gemini-cli",
		DocsURL:        "https://github.com/google-gemini/gemini-cli",
		launchArgs:     func(task string) []string { return []string{"-i", task} },
	},
	{
		Type:           TypeAider,
		Binary:         "aider",
		ProbeArgs:      []string{"--version"},
		InstallCommand: "python -m pip install aider-install && aider-install",
		DocsURL:        "https://aider.chat/docs/install.html",
		launchArgs:     func(task string) []string { return []string{"--message", task} },
	},
	{
		Type:           TypeShell,
		Binary:         "sh",
		ProbeArgs:      []string{"-c", "true"},
		InstallCommand: "provided by the operating system",
		DocsURL:        "",
		launchArgs:     func(task string) []string { return []string{"-c", task} },
	},
}

// Lookup returns the spec for a type.
func Lookup(t Type) (Spec, error) {
	for _, s := range registry {
		if s.Type == t {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown adapter type %q", t)
}

// All returns the registry in deterministic order.
func All() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// DefaultOrder returns the fixed candidate order used for ranked selection
// tie-breaking: first listed wins.
func DefaultOrder() []Type {
	out := make([]Type, 0, len(registry))
	for _, s := range registry {
		out = append(out, s.Type)
	}
	return out
}

// Valid reports whether t names a registered adapter.
func Valid(t Type) bool {
	_, err := Lookup(t)
	return err == nil
}
