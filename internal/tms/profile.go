package tms

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfileYAML []byte

// Profile holds the fixed form fields sent with user and contact writes
type Profile struct {
	PageName      string            `yaml:"page_name"`
	LoginPageName string            `yaml:"login_page_name"`
	OrderPageName string            `yaml:"order_page_name"`
	User          map[string]string `yaml:"user"`
	Contact       map[string]string `yaml:"contact"`
}

// DefaultProfile returns the embedded profile
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("tms: embedded profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads a profile from path. An empty path returns the embedded profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tms profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile and fills in missing page names
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse tms profile: %w", err)
	}
	if p.PageName == "" {
		p.PageName = "dashboardUserManager"
	}
	if p.LoginPageName == "" {
		p.LoginPageName = "/index.html"
	}
	if p.OrderPageName == "" {
		p.OrderPageName = "dashboardOrders"
	}
	if p.User == nil {
		p.User = map[string]string{}
	}
	if p.Contact == nil {
		p.Contact = map[string]string{}
	}
	return &p, nil
}
