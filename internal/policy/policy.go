// Package policy evaluates shell commands against a compiled safety rule
// snapshot. Evaluation is a pure function of (command, cwd, snapshot):
// identical inputs always yield identical decisions. Snapshots are immutable
// once compiled; configuration reloads build a fresh snapshot that callers
// swap in atomically.
package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SafetyLevel is the process- or profile-wide strictness setting.
type SafetyLevel int

const (
	LevelOff SafetyLevel = iota
	LevelPassive
	LevelActive
)

// ParseLevel maps a config string to a SafetyLevel.
func ParseLevel(s string) (SafetyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LevelOff, nil
	case "passive":
		return LevelPassive, nil
	case "active":
		return LevelActive, nil
	}
	return LevelOff, fmt.Errorf("unknown safety level %q", s)
}

func (l SafetyLevel) String() string {
	switch l {
	case LevelPassive:
		return "passive"
	case LevelActive:
		return "active"
	default:
		return "off"
	}
}

// RiskTier classifies how dangerous a matched command is. Higher values are
// more severe; the highest matching tier governs the decision.
type RiskTier int

const (
	TierNone RiskTier = iota
	TierLow
	TierModerate
	TierHigh
	TierCritical
)

// ParseTier maps a config string to a RiskTier.
func ParseTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "moderate":
		return TierModerate, nil
	case "high":
		return TierHigh, nil
	case "critical":
		return TierCritical, nil
	}
	return TierNone, fmt.Errorf("unknown risk tier %q", s)
}

func (t RiskTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "none"
	}
}

// Rule is one pattern matcher with its risk tier and explanation.
type Rule struct {
	Pattern     string
	Tier        RiskTier
	Explanation string
}

// BlockEntry is a user blocklist pattern with a stated reason.
type BlockEntry struct {
	Pattern string
	Reason  string
}

// Config is the policy-relevant slice of the daemon configuration, already
// parsed into domain types. Compile turns it into a Snapshot.
type Config struct {
	Level           SafetyLevel
	ActiveProfile   string
	Profiles        map[string]SafetyLevel
	DirectoryLevels map[string]SafetyLevel
	Allowlist       []string
	Blocklist       []BlockEntry
	Rules           []Rule // appended after the built-in rule set
	MaxCommandLen   int
}

// Decision is the verdict for one command.
type Decision struct {
	Allow               bool
	Warnings            []string
	RequireConfirmation bool
	BlockedReason       string
}

type compiledRule struct {
	re          *regexp.Regexp
	tier        RiskTier
	explanation string
}

type compiledBlock struct {
	re     *regexp.Regexp
	reason string
}

type dirOverride struct {
	prefix string
	level  SafetyLevel
}

// Snapshot is an immutable compiled rule set. It is safe for concurrent use
// and never mutated after Compile returns.
type Snapshot struct {
	version       string
	level         SafetyLevel
	profileLevel  *SafetyLevel // active profile's level, if any
	dirOverrides  []dirOverride
	allow         []*regexp.Regexp
	block         []compiledBlock
	rules         []compiledRule
	maxCommandLen int
}

// DefaultMaxCommandLen bounds rule-matching cost on pathological input.
const DefaultMaxCommandLen = 65536

// Compile builds a snapshot from cfg plus the built-in rule set. Any pattern
// that fails to compile makes the whole compile fail, so a daemon reloading
// configuration keeps serving its previous snapshot.
func Compile(cfg Config) (*Snapshot, error) {
	s := &Snapshot{
		version:       uuid.NewString(),
		level:         cfg.Level,
		maxCommandLen: cfg.MaxCommandLen,
	}
	if s.maxCommandLen <= 0 {
		s.maxCommandLen = DefaultMaxCommandLen
	}

	if cfg.ActiveProfile != "" {
		if lvl, ok := cfg.Profiles[cfg.ActiveProfile]; ok {
			l := lvl
			s.profileLevel = &l
		}
	}

	// Longest prefix first so the most specific directory override wins.
	for prefix, lvl := range cfg.DirectoryLevels {
		s.dirOverrides = append(s.dirOverrides, dirOverride{prefix: prefix, level: lvl})
	}
	sort.Slice(s.dirOverrides, func(i, j int) bool {
		return len(s.dirOverrides[i].prefix) > len(s.dirOverrides[j].prefix)
	})

	for _, p := range cfg.Allowlist {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling allowlist pattern %q: %w", p, err)
		}
		s.allow = append(s.allow, re)
	}
	for _, b := range cfg.Blocklist {
		re, err := regexp.Compile(b.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling blocklist pattern %q: %w", b.Pattern, err)
		}
		reason := b.Reason
		if reason == "" {
			reason = "blocked by configuration"
		}
		s.block = append(s.block, compiledBlock{re: re, reason: reason})
	}

	all := make([]Rule, 0, len(builtinRules)+len(cfg.Rules))
	all = append(all, builtinRules...)
	all = append(all, cfg.Rules...)
	for _, r := range all {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule pattern %q: %w", r.Pattern, err)
		}
		s.rules = append(s.rules, compiledRule{re: re, tier: r.Tier, explanation: r.Explanation})
	}

	return s, nil
}

// Version identifies this snapshot; it changes on every compile.
func (s *Snapshot) Version() string { return s.version }

// Evaluate returns the decision for command executed in cwd. Evaluation
// order: length cap, allowlist, blocklist, effective-level resolution,
// risk classification, action table. First decisive match wins.
func (s *Snapshot) Evaluate(command, cwd string) Decision {
	level := s.effectiveLevel(cwd)

	// Oversize input is rejected before any rule matching to bound cost.
	if len(command) > s.maxCommandLen {
		switch level {
		case LevelOff:
			return Decision{Allow: true}
		case LevelPassive:
			return Decision{Allow: true, Warnings: []string{"command exceeds maximum length"}}
		default:
			return Decision{BlockedReason: "command exceeds maximum length"}
		}
	}

	for _, re := range s.allow {
		if re.MatchString(command) {
			return Decision{Allow: true}
		}
	}
	for _, b := range s.block {
		if b.re.MatchString(command) {
			return Decision{BlockedReason: b.reason}
		}
	}

	if level == LevelOff {
		return Decision{Allow: true}
	}

	tier, explanations := s.classify(command)

	switch level {
	case LevelPassive:
		if tier >= TierModerate {
			return Decision{Allow: true, Warnings: explanations}
		}
		return Decision{Allow: true}
	default: // LevelActive
		switch {
		case tier == TierCritical:
			return Decision{BlockedReason: explanations[0]}
		case tier == TierHigh:
			return Decision{Allow: true, RequireConfirmation: true, Warnings: explanations}
		case tier == TierModerate:
			return Decision{Allow: true, Warnings: explanations}
		default:
			return Decision{Allow: true}
		}
	}
}

// effectiveLevel resolves the safety level for cwd. A named profile's level
// takes precedence over a directory override when both apply; this tie-break
// is deliberate and documented, not inherent.
func (s *Snapshot) effectiveLevel(cwd string) SafetyLevel {
	if s.profileLevel != nil {
		return *s.profileLevel
	}
	for _, d := range s.dirOverrides {
		if underPrefix(cwd, d.prefix) {
			return d.level
		}
	}
	return s.level
}

// classify returns the highest matching tier and the explanations of every
// rule at that tier, in rule order.
func (s *Snapshot) classify(command string) (RiskTier, []string) {
	max := TierNone
	var explanations []string
	for _, r := range s.rules {
		if !r.re.MatchString(command) {
			continue
		}
		if r.tier > max {
			max = r.tier
			explanations = explanations[:0]
		}
		if r.tier == max {
			explanations = append(explanations, r.explanation)
		}
	}
	return max, explanations
}

// underPrefix reports whether path is dir or a descendant of dir.
func underPrefix(path, dir string) bool {
	if dir == "" {
		return false
	}
	dir = strings.TrimRight(dir, "/")
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+"/")
}
