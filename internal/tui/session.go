package tui

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends names the two services every operation talks to.
type Backends struct {
	GostintURL string
	VaultURL   string
}

// Session is created by Login and handed, by value, to every call that needs
// credentials. It is never written to disk.
type Session struct {
	Token    string
	APIToken string
	Backends Backends
	Since    time.Time
}

func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.APIToken) != ""
}

// Redacted is safe to log.
func (s Session) Redacted() map[string]string {
	return map[string]string{
		"gostint": s.Backends.GostintURL,
		"vault":   s.Backends.VaultURL,
		"token":   redact(s.Token),
		"api":     redact(s.APIToken),
	}
}

func redact(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

// Profile keeps the non-secret form defaults between runs.
type Profile struct {
	GostintURL string `yaml:"gostint_url,omitempty"`
	VaultURL   string `yaml:"vault_url,omitempty"`
	Role       string `yaml:"role,omitempty"`
	QName      string `yaml:"qname,omitempty"`
	Image      string `yaml:"image,omitempty"`
	SavedAt    string `yaml:"saved_at,omitempty"`
}

func ProfileFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gostint/profile.yaml"
	}
	return filepath.Join(home, ".gostint", "profile.yaml")
}

func LoadProfile(path string) (*Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(content, &p); err != nil {
		// a corrupt profile is not worth blocking login over
		return &Profile{}, nil
	}
	return &p, nil
}

func SaveProfile(path string, p Profile) error {
	p.SavedAt = time.Now().UTC().Format(time.RFC3339)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	content, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
