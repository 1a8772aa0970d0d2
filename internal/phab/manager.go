package phab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qiniu/phabmcp/internal/config"
)

// Manager hands out Conduit clients with hybrid authentication: an explicit
// per-call token wins, then the configured/environment token, then the
// arcanist credential file. The default client is cached; per-call token
// clients are built fresh so user attribution stays correct.
type Manager struct {
	cfg *config.Config

	mu            sync.Mutex
	defaultClient *Client
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Client resolves a Conduit client for one tool call. apiToken may be
// empty.
func (m *Manager) Client(apiToken string) (API, error) {
	if token := strings.TrimSpace(apiToken); token != "" {
		client, err := NewClient(m.cfg.Phabricator.URL, token)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with provided token: %w", err)
		}
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.defaultClient != nil {
		return m.defaultClient, nil
	}

	token := strings.TrimSpace(m.cfg.Phabricator.Token)
	if token == "" {
		var err error
		token, err = tokenFromArcrc(m.cfg.Phabricator.ArcrcPath, m.cfg.Phabricator.URL)
		if err != nil {
			return nil, fmt.Errorf(
				"no API token available: set PHABRICATOR_TOKEN, configure phabricator.token, "+
					"pass api_token on the tool call, or provide an arcanist credential file (%w)", err)
		}
	}

	client, err := NewClient(m.cfg.Phabricator.URL, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create default client: %w", err)
	}
	m.defaultClient = client
	return client, nil
}

// arcrc is the subset of the arcanist credential file we read.
type arcrc struct {
	Hosts map[string]struct {
		Token string `json:"token"`
	} `json:"hosts"`
}

// tokenFromArcrc reads the token for host from an arcanist credential file.
// path empty means ~/.arcrc. Arcanist keys hosts by their API URL, so both
// the bare host and the /api/ form are tried.
func tokenFromArcrc(path, host string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot locate home directory: %w", err)
		}
		path = filepath.Join(home, ".arcrc")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}

	var rc arcrc
	if err := json.Unmarshal(data, &rc); err != nil {
		return "", fmt.Errorf("cannot parse %s: %w", path, err)
	}

	base := strings.TrimRight(host, "/")
	for _, key := range []string{base + "/api/", base + "/api", base + "/", base} {
		if entry, ok := rc.Hosts[key]; ok && entry.Token != "" {
			return entry.Token, nil
		}
	}
	return "", fmt.Errorf("no token for %s in %s", host, path)
}
