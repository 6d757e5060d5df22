// Package tags translates gallery tags and renders channel announcements.
package tags

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	namespaceRows  = "rows"
	alternativeSep = " | "
)

// DB is a tag translation database. The zero value translates nothing.
type DB struct {
	namespaces map[string]map[string]string
}

type dbFile struct {
	Data []struct {
		Namespace string `json:"namespace"`
		Data      map[string]struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"data"`
}

// Load reads a translation database. An empty path yields an identity translator.
func Load(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return &DB{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tag database: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a translation database from JSON.
func Parse(raw []byte) (*DB, error) {
	var f dbFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode tag database: %w", err)
	}

	db := &DB{namespaces: make(map[string]map[string]string, len(f.Data))}
	for _, ns := range f.Data {
		names := make(map[string]string, len(ns.Data))
		for tag, info := range ns.Data {
			names[tag] = info.Name
		}
		db.namespaces[ns.Namespace] = names
	}
	return db, nil
}

// Translate returns the translations of a tag. A tag may have several
// alternatives; untranslated tags come back unchanged.
func (db *DB) Translate(namespace, tag string) []string {
	if db == nil {
		return []string{tag}
	}
	names, ok := db.namespaces[namespace]
	if !ok {
		return []string{tag}
	}
	name, ok := names[tag]
	if !ok || name == "" {
		name = tag
	}
	return strings.Split(name, alternativeSep)
}

// TranslateNamespace translates a namespace name.
func (db *DB) TranslateNamespace(namespace string) string {
	return db.Translate(namespaceRows, namespace)[0]
}
