// Package universe builds the tradable symbol list: preferred-name
// resolution against the broker catalog, optional per-class discovery
// with caps, and anchor selection for the scheduler clock.
package universe

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/calebmo/candlebot/internal/broker"
)

// Config is the universe slice of the bot configuration.
type Config struct {
	UseSymbolDiscovery       bool            `yaml:"use_symbol_discovery"`
	DiscoveryIntervalMinutes int             `yaml:"discovery_interval_minutes"`
	PreferredSymbols         []string        `yaml:"preferred_symbols"`
	IncludeAssetClasses      map[string]bool `yaml:"include_asset_classes"`
	DiscoveryLimits          struct {
		MaxSymbolsTotal int `yaml:"max_symbols_total"`
		MaxPerClass     int `yaml:"max_per_class"`
	} `yaml:"discovery_limits"`
	SymbolsFile string `yaml:"symbols_file"`
}

// Universe is the resolved symbol set for one discovery pass.
type Universe struct {
	Symbols []string
	Meta    map[string]broker.SymbolMeta
	Anchor  string
}

// Aliases maps a canonical preferred name to broker-specific spellings.
type Aliases map[string][]string

// LoadAliases reads the optional symbols YAML file. A missing path
// returns an empty map.
func LoadAliases(path string) (Aliases, error) {
	if path == "" {
		return Aliases{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var doc struct {
		Aliases Aliases `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	if doc.Aliases == nil {
		doc.Aliases = Aliases{}
	}
	return doc.Aliases, nil
}

// Build resolves the universe from the discovered catalog.
func Build(discovered []broker.SymbolMeta, cfg Config, aliases Aliases, log *logrus.Logger) Universe {
	meta := make(map[string]broker.SymbolMeta, len(discovered))
	names := make([]string, 0, len(discovered))
	for _, m := range discovered {
		meta[m.Name] = m
		names = append(names, m.Name)
	}

	var ordered []string
	for _, pref := range cfg.PreferredSymbols {
		resolved := Resolve(pref, names, aliases)
		if resolved == "" {
			log.WithField("symbol", pref).Warn("preferred symbol not found in catalog")
			continue
		}
		ordered = append(ordered, resolved)
	}

	if cfg.UseSymbolDiscovery {
		ordered = append(ordered, discoverByClass(discovered, cfg)...)
	}

	u := Universe{Meta: meta}
	seen := make(map[string]bool)
	for _, s := range ordered {
		if seen[s] {
			continue
		}
		m, ok := meta[s]
		if !ok || !m.TradeAllowed {
			continue
		}
		seen[s] = true
		u.Symbols = append(u.Symbols, s)
		if cfg.DiscoveryLimits.MaxSymbolsTotal > 0 && len(u.Symbols) >= cfg.DiscoveryLimits.MaxSymbolsTotal {
			break
		}
	}
	if len(u.Symbols) > 0 {
		u.Anchor = u.Symbols[0]
	}
	return u
}

// Resolve maps a canonical name onto a discovered symbol name:
// exact match, then alias, then case-insensitive, then shortest prefix.
func Resolve(name string, discovered []string, aliases Aliases) string {
	for _, d := range discovered {
		if d == name {
			return d
		}
	}
	for _, alias := range aliases[name] {
		for _, d := range discovered {
			if d == alias {
				return d
			}
		}
	}
	lower := strings.ToLower(name)
	for _, d := range discovered {
		if strings.ToLower(d) == lower {
			return d
		}
	}
	best := ""
	for _, d := range discovered {
		if strings.HasPrefix(d, name) {
			if best == "" || len(d) < len(best) {
				best = d
			}
		}
	}
	return best
}

func discoverByClass(discovered []broker.SymbolMeta, cfg Config) []string {
	byClass := make(map[broker.AssetClass][]string)
	for _, m := range discovered {
		if !m.TradeAllowed {
			continue
		}
		byClass[m.Class] = append(byClass[m.Class], m.Name)
	}
	classes := []broker.AssetClass{broker.ClassForex, broker.ClassMetals, broker.ClassIndices, broker.ClassStocks}
	var out []string
	for _, cls := range classes {
		if !cfg.IncludeAssetClasses[string(cls)] {
			continue
		}
		names := byClass[cls]
		sort.Strings(names)
		limit := cfg.DiscoveryLimits.MaxPerClass
		if limit > 0 && len(names) > limit {
			names = names[:limit]
		}
		out = append(out, names...)
	}
	return out
}
