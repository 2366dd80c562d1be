package catalog

import (
	"path/filepath"

	"github.com/psantana5/bootguard/pkg/codec"
)

// ConfigFile describes one known configuration artifact the engine is
// allowed to repair. Critical files fail validation hard when corrupted;
// the rest degrade to recoverable errors.
type ConfigFile struct {
	Name     string
	Path     string
	Critical bool
	defaults any
}

// DefaultPayload renders the file's factory-default content.
func (f ConfigFile) DefaultPayload(c codec.Codec) (string, error) {
	return c.Marshal(f.defaults)
}

// Catalog is the fixed set of directories and configuration files under
// the application data directory. Recovery and validation only ever
// touch paths the catalog names.
type Catalog struct {
	BaseDir string
}

func New(baseDir string) *Catalog {
	return &Catalog{BaseDir: baseDir}
}

// Directories lists every directory the application requires,
// parents before children.
func (c *Catalog) Directories() []string {
	return []string{
		c.BaseDir,
		filepath.Join(c.BaseDir, "notes"),
		filepath.Join(c.BaseDir, "themes"),
		filepath.Join(c.BaseDir, "templates"),
		filepath.Join(c.BaseDir, "backups"),
		filepath.Join(c.BaseDir, "logs"),
	}
}

// ConfigFiles lists every configuration file the engine knows how to
// regenerate, with factory defaults.
func (c *Catalog) ConfigFiles() []ConfigFile {
	return []ConfigFile{
		{
			Name:     "settings",
			Path:     filepath.Join(c.BaseDir, "settings.json"),
			Critical: true,
			defaults: map[string]any{
				"theme":                "system",
				"font_size":            14,
				"auto_save_seconds":    5,
				"spell_check":          true,
				"markdown_preview":     true,
				"use_default_settings": false,
			},
		},
		{
			Name:     "hotkeys",
			Path:     filepath.Join(c.BaseDir, "hotkeys.json"),
			Critical: false,
			defaults: map[string]any{
				"new_note":       "ctrl+n",
				"save_note":      "ctrl+s",
				"search":         "ctrl+shift+f",
				"toggle_preview": "ctrl+p",
			},
		},
		{
			Name:     "sync",
			Path:     filepath.Join(c.BaseDir, "sync.json"),
			Critical: false,
			defaults: map[string]any{
				"enabled":          false,
				"provider":         "",
				"interval_minutes": 15,
			},
		},
		{
			Name:     "templates",
			Path:     filepath.Join(c.BaseDir, "templates", "templates.json"),
			Critical: false,
			defaults: map[string]any{
				"templates": []any{},
			},
		},
	}
}

// ResourceFiles lists bundled resources whose loadability is validated.
// These are never regenerated by recovery; a missing one is only a
// warning.
func (c *Catalog) ResourceFiles() []string {
	return []string{
		filepath.Join(c.BaseDir, "themes", "light.json"),
		filepath.Join(c.BaseDir, "themes", "dark.json"),
	}
}

// FindConfigFile returns the catalog entry whose path matches, if any.
func (c *Catalog) FindConfigFile(path string) (ConfigFile, bool) {
	for _, f := range c.ConfigFiles() {
		if f.Path == path {
			return f, true
		}
	}
	return ConfigFile{}, false
}
