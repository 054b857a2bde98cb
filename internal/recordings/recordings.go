package recordings

import (
	"bytes"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

// Config holds the storage credentials for visit recordings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Storage uploads finished visit recordings to a Supabase bucket. Upload
// failures never interrupt a live session; the caller keeps the local copy
// and retries.
type Storage struct {
	client *supabase.Client
	bucket string
}

// New builds a storage client. Returns an error instead of a client when the
// credentials are missing so main can run without recording storage.
func New(config Config) (*Storage, error) {
	if config.URL == "" || config.ServiceRoleKey == "" {
		return nil, fmt.Errorf("recordings: storage credentials missing")
	}
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("recordings: create client: %w", err)
	}
	return &Storage{client: client, bucket: config.Bucket}, nil
}

// Upload stores one recording under the given key.
func (s *Storage) Upload(key string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("recordings: upload %s: %w", key, err)
	}
	return nil
}

// Key builds a stable object key for a session's recording.
func Key(sessionID string, started time.Time) string {
	return fmt.Sprintf("visits/%s/%s.pcm", started.UTC().Format("2006-01-02"), sessionID)
}
