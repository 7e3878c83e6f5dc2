// Package config holds the site-level settings of the deployment: where
// the recorder writes observations, where the calibration tables live,
// and where processed products go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lwaproc/internal/ms"
)

// Site is the YAML-borne deployment layout.
type Site struct {
	DataRoot     string  `yaml:"data_root"`
	CaltableRoot string  `yaml:"caltable_root"`
	ProcRoot     string  `yaml:"proc_root"`
	Band         ms.Band `yaml:"band"`
}

// Load reads a site config file.
func Load(path string) (Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read site config: %w", err)
	}
	var s Site
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Site{}, fmt.Errorf("parse site config %s: %w", path, err)
	}
	return s, s.validate(path)
}

func (s Site) validate(path string) error {
	for _, f := range []struct{ name, value string }{
		{"data_root", s.DataRoot},
		{"caltable_root", s.CaltableRoot},
		{"proc_root", s.ProcRoot},
	} {
		if f.value == "" {
			return fmt.Errorf("site config %s: %s is required", path, f.name)
		}
	}
	if s.Band == "" {
		return fmt.Errorf("site config %s: band is required", path)
	}
	return nil
}
