package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
)

// policyDocument is the on-disk shape of CACHE_POLICY_FILE:
//
//	ttls:
//	  verse: 24h
//	  search: 10m
//	seeds:
//	  - category: verse
//	    args: [KJV, JHN, "3", "16"]
type policyDocument struct {
	TTLs  map[string]string `yaml:"ttls"`
	Seeds []struct {
		Category string   `yaml:"category"`
		Args     []string `yaml:"args"`
	} `yaml:"seeds"`
}

// CachePolicy is a parsed policy file.
type CachePolicy struct {
	TTLs  map[cacheaside.Category]time.Duration
	Seeds []cacheaside.Query
}

// LoadPolicyFile reads and validates a YAML cache policy file.
func LoadPolicyFile(path string) (*CachePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cache policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy validates a YAML cache policy document.
func ParsePolicy(raw []byte) (*CachePolicy, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse cache policy: %w", err)
	}
	known := cacheaside.DefaultTTLs()
	p := &CachePolicy{TTLs: make(map[cacheaside.Category]time.Duration, len(doc.TTLs))}
	for name, value := range doc.TTLs {
		cat := cacheaside.Category(name)
		if _, ok := known[cat]; !ok {
			return nil, fmt.Errorf("cache policy: unknown category %q", name)
		}
		ttl, err := time.ParseDuration(value)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("cache policy: ttl for %q must be a positive duration, got %q", name, value)
		}
		p.TTLs[cat] = ttl
	}
	for i, s := range doc.Seeds {
		cat := cacheaside.Category(s.Category)
		if _, ok := known[cat]; !ok {
			return nil, fmt.Errorf("cache policy: seed %d has unknown category %q", i, s.Category)
		}
		p.Seeds = append(p.Seeds, cacheaside.Query{Category: cat, Args: s.Args})
	}
	return p, nil
}
