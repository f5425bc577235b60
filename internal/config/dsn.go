package config

import (
	"fmt"
	"strings"
)

// ParsedDSN is a usage database location split by backend.
type ParsedDSN struct {
	Backend string // "sqlite" or "postgres"
	Path    string // filesystem path for sqlite
	URL     string // connection URL for postgres
}

// ParseDSN splits a sqlite:// or postgres:// DSN. An empty DSN returns nil.
func ParseDSN(dsn string) (*ParsedDSN, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite DSN has no path")
		}
		return &ParsedDSN{Backend: "sqlite", Path: path}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return &ParsedDSN{Backend: "postgres", URL: dsn}, nil
	default:
		return nil, fmt.Errorf("unsupported DSN scheme in %q (use sqlite:// or postgres://)", dsn)
	}
}
