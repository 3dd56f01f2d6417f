// Package correct proposes a replacement command after a failure. Strategies
// run in order — typo table, edit-distance dictionary match, diagnostic
// pattern rules — and the first confident hit wins. The engine never emits a
// suggestion for a zero exit code.
package correct

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Suggestion is a proposed replacement command.
type Suggestion struct {
	Command     string
	Explanation string
	Confidence  float64
}

// Confidence scores. Built-in pattern hits are fixed and high; distance
// matches scale with how far the typo is from the dictionary word.
const (
	typoTableConfidence  = 0.9
	diagnosticConfidence = 0.85
	DefaultThreshold     = 0.5
)

// exitCommandNotFound is the shell's exit code for an unresolvable command.
const exitCommandNotFound = 127

// Config tunes an Engine. Zero values use the built-in defaults.
type Config struct {
	// TypoTable entries are merged over the built-in table.
	TypoTable map[string]string
	// ExtraTools extends the known-tool dictionary.
	ExtraTools []string
	// Threshold suppresses any suggestion scoring below it.
	Threshold float64
}

// Input is everything known about one failed command.
type Input struct {
	Command    string
	ExitCode   int
	Diagnostic string // stderr snippet, may be empty
	Cwd        string
	History    []string // recent commands, newest last
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	typos     map[string]string
	tools     []string
	threshold float64
}

// New builds an engine from cfg merged over the defaults.
func New(cfg Config) *Engine {
	typos := make(map[string]string, len(defaultTypos)+len(cfg.TypoTable))
	for k, v := range defaultTypos {
		typos[k] = v
	}
	for k, v := range cfg.TypoTable {
		typos[k] = v
	}
	tools := make([]string, 0, len(knownTools)+len(cfg.ExtraTools))
	tools = append(tools, knownTools...)
	tools = append(tools, cfg.ExtraTools...)
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{typos: typos, tools: tools, threshold: threshold}
}

var (
	permissionDeniedRe = regexp.MustCompile(`(?i)(permission denied|operation not permitted|access denied|eacces)`)
	commandNotFoundRe  = regexp.MustCompile(`(?i)command not found`)
	noSuchFileRe       = regexp.MustCompile(`(?i)no such file or directory`)
)

// Suggest returns at most one suggestion for a failed command, or nil when
// the exit code is zero or nothing scores above the threshold.
func (e *Engine) Suggest(in Input) *Suggestion {
	if in.ExitCode == 0 {
		return nil
	}
	cmd := strings.TrimSpace(in.Command)
	if cmd == "" {
		return nil
	}

	strategies := []func(string, Input) *Suggestion{
		e.typoTable,
		e.dictionaryMatch,
		e.diagnosticRules,
	}
	for _, strategy := range strategies {
		if s := strategy(cmd, in); s != nil && s.Confidence >= e.threshold {
			return s
		}
	}
	return nil
}

// typoTable checks the whole command, then its first token, against the
// typo table.
func (e *Engine) typoTable(cmd string, _ Input) *Suggestion {
	if fixed, ok := e.typos[cmd]; ok {
		return &Suggestion{
			Command:     fixed,
			Explanation: "corrected a known typo",
			Confidence:  typoTableConfidence,
		}
	}
	head, rest, hasRest := strings.Cut(cmd, " ")
	if fixed, ok := e.typos[head]; ok {
		corrected := fixed
		if hasRest {
			corrected = fixed + " " + rest
		}
		return &Suggestion{
			Command:     corrected,
			Explanation: "corrected '" + head + "' to '" + fixed + "'",
			Confidence:  typoTableConfidence,
		}
	}
	return nil
}

// dictionaryMatch edit-distance-matches the first token against the known
// tool dictionary when the failure looks like "command not found".
func (e *Engine) dictionaryMatch(cmd string, in Input) *Suggestion {
	if in.ExitCode != exitCommandNotFound && !commandNotFoundRe.MatchString(in.Diagnostic) {
		return nil
	}
	head, rest, hasRest := strings.Cut(cmd, " ")

	best, bestDist := "", 3 // only distances 1 and 2 are plausible typos
	for _, tool := range e.tools {
		if tool == head {
			return nil // the tool exists; the failure is something else
		}
		if d := editDistance(head, tool); d < bestDist {
			best, bestDist = tool, d
		}
	}
	if best == "" {
		return nil
	}

	longest := len(head)
	if len(best) > longest {
		longest = len(best)
	}
	confidence := 1 - float64(bestDist)/float64(longest)

	corrected := best
	if hasRest {
		corrected = best + " " + rest
	}
	return &Suggestion{
		Command:     corrected,
		Explanation: "'" + head + "' is not installed; '" + best + "' is the closest known command",
		Confidence:  confidence,
	}
}

// diagnosticRules maps (diagnostic pattern, exit code) to a transformation.
func (e *Engine) diagnosticRules(cmd string, in Input) *Suggestion {
	// Permission denied at exit 1/126: prepend sudo unless already present.
	if (in.ExitCode == 1 || in.ExitCode == 126) && permissionDeniedRe.MatchString(in.Diagnostic) {
		if hasSudoPrefix(cmd) {
			return nil
		}
		return &Suggestion{
			Command:     "sudo " + cmd,
			Explanation: "permission denied; retry with elevated privileges",
			Confidence:  diagnosticConfidence,
		}
	}

	// Missing file: fuzzy-match the last argument against cwd entries.
	if noSuchFileRe.MatchString(in.Diagnostic) && in.Cwd != "" {
		return e.fuzzyPath(cmd, in.Cwd)
	}
	return nil
}

// fuzzyPath replaces the command's last argument with the closest directory
// entry in cwd, when one is within two edits.
func (e *Engine) fuzzyPath(cmd, cwd string) *Suggestion {
	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return nil
	}
	arg := fields[len(fields)-1]
	base := filepath.Base(arg)

	entries, err := os.ReadDir(cwd)
	if err != nil {
		return nil
	}
	best, bestDist := "", 3
	for _, ent := range entries {
		name := ent.Name()
		if name == base {
			return nil // the path exists; the failure is something else
		}
		if d := editDistance(base, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	if best == "" {
		return nil
	}

	fixed := best
	if dir := filepath.Dir(arg); dir != "." {
		fixed = filepath.Join(dir, best)
	}
	fields[len(fields)-1] = fixed

	longest := len(base)
	if len(best) > longest {
		longest = len(best)
	}
	return &Suggestion{
		Command:     strings.Join(fields, " "),
		Explanation: "'" + arg + "' not found; did you mean '" + fixed + "'?",
		Confidence:  1 - float64(bestDist)/float64(longest),
	}
}

func hasSudoPrefix(cmd string) bool {
	trimmed := strings.TrimLeft(cmd, " \t")
	return trimmed == "sudo" || strings.HasPrefix(trimmed, "sudo ") || strings.HasPrefix(trimmed, "sudo\t")
}

// SimilarEnough reports whether a succeeding command looks like the user's
// own manual fix of the preceding failure, gating the typo-learning path.
// The heuristic is fuzzy by nature: share a first token, or be within two
// edits, or exceed 0.6 normalized similarity.
func SimilarEnough(failed, succeeded string) bool {
	failed = strings.TrimSpace(failed)
	succeeded = strings.TrimSpace(succeeded)
	if failed == "" || succeeded == "" || failed == succeeded {
		return false
	}
	fHead, _, _ := strings.Cut(failed, " ")
	sHead, _, _ := strings.Cut(succeeded, " ")
	if fHead == sHead {
		return true
	}
	if editDistance(failed, succeeded) <= 2 {
		return true
	}
	return similarity(failed, succeeded) >= 0.6
}
