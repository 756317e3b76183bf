package vapix

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Credentials are the Basic auth pair of a service account.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CredentialSource resolves the service account for a capability domain,
// e.g. "vapix-ioports-user".
type CredentialSource interface {
	Credentials(ctx context.Context, domain string) (Credentials, error)
}

// StaticCredentials is an in-memory CredentialSource.
type StaticCredentials map[string]Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials(_ context.Context, domain string) (Credentials, error) {
	c, ok := s[domain]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, domain)
	}
	return c, nil
}

// FileCredentials reads credentials from a YAML file mapping each domain to
// a username and password:
//
//	vapix-ioports-user:
//	  username: ioports
//	  password: secret
//
// The file is read on first use and cached.
type FileCredentials struct {
	path string

	once    sync.Once
	entries StaticCredentials
	err     error
}

// NewFileCredentials creates a source backed by the file at path.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// Credentials implements CredentialSource.
func (f *FileCredentials) Credentials(ctx context.Context, domain string) (Credentials, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return Credentials{}, f.err
	}
	return f.entries.Credentials(ctx, domain)
}

func (f *FileCredentials) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("reading credentials file: %w", err)
		return
	}
	entries := StaticCredentials{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		f.err = fmt.Errorf("parsing credentials file: %w", err)
		return
	}
	for domain, c := range entries {
		if c.Username == "" {
			f.err = fmt.Errorf("parsing credentials file: %s has no username", domain)
			return
		}
	}
	f.entries = entries
}
