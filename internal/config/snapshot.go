package config

import (
	"fmt"

	"github.com/fakeyudi/shellguard/internal/policy"
)

// Snapshot compiles the merged configuration into an immutable policy
// snapshot.
func Snapshot(cfg Config) (*policy.Snapshot, error) {
	pc, err := PolicyConfig(cfg)
	if err != nil {
		return nil, err
	}
	return policy.Compile(pc)
}

// PolicyConfig maps the string-typed config onto policy domain types,
// validating levels and tiers as it goes.
func PolicyConfig(cfg Config) (policy.Config, error) {
	var pc policy.Config

	level, err := policy.ParseLevel(orDefault(cfg.SafetyLevel, "active"))
	if err != nil {
		return pc, fmt.Errorf("safety_level: %w", err)
	}
	pc.Level = level
	pc.ActiveProfile = cfg.ActiveProfile
	pc.MaxCommandLen = cfg.MaxCommandLength

	if len(cfg.Profiles) > 0 {
		pc.Profiles = make(map[string]policy.SafetyLevel, len(cfg.Profiles))
		for name, s := range cfg.Profiles {
			lvl, err := policy.ParseLevel(s)
			if err != nil {
				return pc, fmt.Errorf("profile %q: %w", name, err)
			}
			pc.Profiles[name] = lvl
		}
	}

	if len(cfg.DirectoryLevels) > 0 {
		pc.DirectoryLevels = make(map[string]policy.SafetyLevel, len(cfg.DirectoryLevels))
		for prefix, s := range cfg.DirectoryLevels {
			lvl, err := policy.ParseLevel(s)
			if err != nil {
				return pc, fmt.Errorf("directory override %q: %w", prefix, err)
			}
			pc.DirectoryLevels[prefix] = lvl
		}
	}

	pc.Allowlist = cfg.Allowlist
	for _, b := range cfg.Blocklist {
		pc.Blocklist = append(pc.Blocklist, policy.BlockEntry{Pattern: b.Pattern, Reason: b.Reason})
	}
	for _, r := range cfg.Rules {
		tier, err := policy.ParseTier(r.Tier)
		if err != nil {
			return pc, fmt.Errorf("rule %q: %w", r.Pattern, err)
		}
		pc.Rules = append(pc.Rules, policy.Rule{Pattern: r.Pattern, Tier: tier, Explanation: r.Reason})
	}

	return pc, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
