package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes one of spec.md §8's concrete end-to-end runs as a
// YAML document, so the six scenarios can be driven from data files
// instead of hardcoded Go, matching this simulator's role as a demo
// harness rather than the test suite itself (the invariants/properties
// live in internal/congestion's _test.go files).
type Scenario struct {
	Name        string        `yaml:"name"`
	Rounds      int           `yaml:"rounds"`
	RoundPeriod time.Duration `yaml:"round_period"`
	RTT         time.Duration `yaml:"rtt"`

	// BandwidthPktsPerMs is the unconstrained link rate before any
	// policer is applied.
	BandwidthPktsPerMs float64 `yaml:"bandwidth_pkts_per_ms"`

	// Policer models a token-bucket middlebox (spec.md §1/§4.5) using
	// golang.org/x/time/rate: BucketPackets is the burst size, RatePktsPerS
	// the refill rate in packets/s. Zero RatePktsPerS means no policer.
	Policer struct {
		BucketPackets int     `yaml:"bucket_packets"`
		RatePktsPerS  float64 `yaml:"rate_pkts_per_s"`
		StartRound    int     `yaml:"start_round"`
	} `yaml:"policer"`

	EnableRTCP bool `yaml:"enable_rtcp"`
}

func loadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Scenario
	if err := yaml.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	if s.RoundPeriod == 0 {
		s.RoundPeriod = time.Millisecond
	}
	if s.RTT == 0 {
		s.RTT = 50 * time.Millisecond
	}
	return &s, nil
}
