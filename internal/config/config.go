// Package config loads the handful of environment variables that
// configure the EchoLock CLI and guardian daemon (spec.md §6:
// RELAY_URLS, MIN_RELAY_SUCCESS, CHAIN_API_URL, DATA_DIR). A
// dedicated configuration framework has no grounding anywhere in the
// retrieval pack for a surface this small, so it stays on the
// standard library; see DESIGN.md.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultDataDir         = "./echolock-data"
	defaultMinRelaySuccess = 5
)

// Config is the process-wide configuration read once at startup and
// threaded through component constructors; nothing reads the
// environment again after Load returns.
type Config struct {
	RelayURLs       []string
	MinRelaySuccess int
	ChainAPIURL     string
	DataDir         string
}

// Load reads the environment and validates it against the invariants
// spec.md §4.3 requires of a publish quorum.
func Load() (*Config, error) {
	cfg := &Config{
		MinRelaySuccess: defaultMinRelaySuccess,
		DataDir:         defaultDataDir,
	}

	if raw := os.Getenv("RELAY_URLS"); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				cfg.RelayURLs = append(cfg.RelayURLs, u)
			}
		}
	}

	if raw := os.Getenv("MIN_RELAY_SUCCESS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parsing MIN_RELAY_SUCCESS")
		}
		cfg.MinRelaySuccess = n
	}

	if raw := os.Getenv("CHAIN_API_URL"); raw != "" {
		cfg.ChainAPIURL = raw
	}

	if raw := os.Getenv("DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}

	if cfg.MinRelaySuccess < 1 {
		return nil, errors.New("MIN_RELAY_SUCCESS must be at least 1")
	}
	if len(cfg.RelayURLs) > 0 && cfg.MinRelaySuccess > len(cfg.RelayURLs) {
		return nil, errors.New("MIN_RELAY_SUCCESS cannot exceed the configured relay pool size")
	}

	return cfg, nil
}
