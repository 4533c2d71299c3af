// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out migrated SQLite databases to tests. Each package
// key migrates one template file; every test gets its own copy of it.
package testdb

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/autobrr/analyzarr/internal/database"
)

type template struct {
	once sync.Once
	path string
	err  error
}

var (
	mu        sync.Mutex
	templates = map[string]*template{}

	unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// Open returns a migrated database private to t and closes it on cleanup.
func Open(t *testing.T, key string) *database.DB {
	t.Helper()

	db, err := database.New(PathFromTemplate(t, key, "analyzarr.db"))
	if err != nil {
		t.Fatalf("open test DB %q: %v", key, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// PathFromTemplate returns a fresh database file inside t.TempDir cloned
// from the template for key.
func PathFromTemplate(t *testing.T, key, filename string) string {
	t.Helper()

	tpl := lookup(key)
	tpl.once.Do(func() {
		tpl.path, tpl.err = migrateTemplate(key)
	})
	if tpl.err != nil {
		t.Fatalf("prepare test DB template %q: %v", key, tpl.err)
	}

	dst := filepath.Join(t.TempDir(), filename)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := copyFile(tpl.path+suffix, dst+suffix); err != nil {
			if suffix != "" && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			t.Fatalf("clone test DB template %q: %v", key, err)
		}
	}

	return dst
}

func lookup(key string) *template {
	mu.Lock()
	defer mu.Unlock()

	tpl, ok := templates[key]
	if !ok {
		tpl = &template{}
		templates[key] = tpl
	}
	return tpl
}

func migrateTemplate(key string) (string, error) {
	name := unsafeKey.ReplaceAllString(key, "-")
	if name == "" || name == "-" {
		name = "testdb"
	}

	dir, err := os.MkdirTemp("", "analyzarr-"+name+"-template-")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "template.db")
	db, err := database.New(path)
	if err != nil {
		return "", err
	}

	return path, db.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
