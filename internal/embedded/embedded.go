// Package embedded carries the default config, prompts and schemas.
package embedded

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

const root = "defaults"

//go:embed defaults/*
var defaults embed.FS

// ReadFile returns an embedded default by its path relative to defaults/
func ReadFile(name string) ([]byte, error) {
	return defaults.ReadFile(path.Join(root, name))
}

// Install writes the defaults under targetDir, leaving files the user
// already has untouched.
func Install(targetDir string) error {
	sub, err := fs.Sub(defaults, root)
	if err != nil {
		return err
	}
	return fs.WalkDir(sub, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || name == "." {
			return err
		}
		target := filepath.Join(targetDir, filepath.FromSlash(name))
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if _, err := os.Stat(target); !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		data, err := fs.ReadFile(sub, name)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", name, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		return nil
	})
}
