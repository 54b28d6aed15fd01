package proxy

import (
	"fmt"
	"math/rand"
	"net/url"

	"github.com/williampepple1/ecoquery-scraper/internal/config"
)

// Manager handles proxy configuration and rotation
type Manager struct {
	Config *config.ProxyConfig
	pick   func(n int) int
}

// NewManager creates a new proxy manager
func NewManager(config *config.ProxyConfig) *Manager {
	return &Manager{
		Config: config,
		pick:   rand.Intn,
	}
}

// GetProxyURL returns a proxy URL from the configuration, or nil when proxies are off
func (m *Manager) GetProxyURL() (*url.URL, error) {
	if m == nil || m.Config == nil || !m.Config.Enabled || len(m.Config.List) == 0 {
		return nil, nil
	}

	// Select a proxy
	proxyStr := m.Config.List[0]
	if m.Config.Rotate && len(m.Config.List) > 1 {
		proxyStr = m.Config.List[m.pick(len(m.Config.List))]
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", proxyStr, err)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("proxy %q must include a host", proxyStr)
	}

	if m.Config.Auth.Username != "" && m.Config.Auth.Password != "" {
		proxyURL.User = url.UserPassword(m.Config.Auth.Username, m.Config.Auth.Password)
	}

	return proxyURL, nil
}

// ServerAddr returns scheme://host of the selected proxy without credentials,
// the form browsers accept on their command line
func (m *Manager) ServerAddr() (string, error) {
	proxyURL, err := m.GetProxyURL()
	if err != nil || proxyURL == nil {
		return "", err
	}
	return proxyURL.Scheme + "://" + proxyURL.Host, nil
}
