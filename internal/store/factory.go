package store

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DatabaseURL string
	SupabaseURL string
	SupabaseKey string
}

// NewStore creates the configured backend. "auto" prefers postgres, then
// supabase, and falls back to in-memory when neither is configured.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == "auto" {
		switch {
		case strings.TrimSpace(opts.DatabaseURL) != "":
			backend = "postgres"
		case strings.TrimSpace(opts.SupabaseURL) != "" && strings.TrimSpace(opts.SupabaseKey) != "":
			backend = "supabase"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewInMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case "supabase":
		return NewSupabaseStore(opts.SupabaseURL, opts.SupabaseKey)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
