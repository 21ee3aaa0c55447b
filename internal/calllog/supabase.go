package calllog

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig selects the project and table that receive call logs.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
}

// SupabaseSink inserts one row per envelope through PostgREST.
type SupabaseSink struct {
	client *supabase.Client
	table  string
}

func NewSupabaseSink(cfg SupabaseConfig) (*SupabaseSink, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "phone_call_logs"
	}
	return &SupabaseSink{client: client, table: table}, nil
}

func (s *SupabaseSink) Name() string { return "supabase" }

func (s *SupabaseSink) Write(ctx context.Context, env Envelope) error {
	errc := make(chan error, 1)
	go func() {
		_, _, err := s.client.From(s.table).Insert(env, false, "", "minimal", "").Execute()
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to insert call log into Supabase: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
