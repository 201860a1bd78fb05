package archive

import (
	"bytes"
	"context"
	"fmt"

	storage "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase uploads objects to a Supabase Storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
}

func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &Supabase{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores data under key, replacing any existing object. The storage
// client takes no context, so the call is abandoned when ctx is done.
func (s *Supabase) Upload(ctx context.Context, key, contentType string, data []byte) error {
	upsert := true
	opts := storage.FileOptions{ContentType: &contentType, Upsert: &upsert}

	done := make(chan error, 1)
	go func() {
		_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data), opts)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to upload to Supabase: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("upload %s: %w", key, ctx.Err())
	}
}
