// Package entity models the named persona that owns a private data
// directory and is the unit of scope for every query in the service
// (spec.md §2 "An entity ... owns a private data directory").
package entity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entity identifies the persona a running process serves.
type Entity struct {
	Name  string
	Root  string
	token string
}

// Layout paths, relative to Root, named in spec.md §6.
const (
	dataDir          = "data"
	crystalsCurrent  = "crystals/current"
	crystalsArchive  = "crystals/archive"
	wordPhotosDir    = "memories/word_photos"
	tokenFileName    = ".entity_token"
	lockFileName     = ".lock"
)

// Open loads (or provisions) the entity rooted at root, generating a fresh
// token file on first run.
func Open(name, root string) (*Entity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("entity name must not be empty")
	}
	e := &Entity{Name: name, Root: root}
	for _, d := range []string{
		e.DataDir(), e.CrystalsCurrentDir(), e.CrystalsArchiveDir(), e.WordPhotosDir(),
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	tok, err := e.loadOrCreateToken()
	if err != nil {
		return nil, err
	}
	e.token = tok
	return e, nil
}

// DataDir is where the relational store's logical database lives (spec.md §6).
func (e *Entity) DataDir() string { return filepath.Join(e.Root, dataDir) }

// CrystalsCurrentDir holds the live numbered crystal snapshots.
func (e *Entity) CrystalsCurrentDir() string { return filepath.Join(e.Root, crystalsCurrent) }

// CrystalsArchiveDir holds superseded crystal snapshots, also vector-indexed.
func (e *Entity) CrystalsArchiveDir() string { return filepath.Join(e.Root, crystalsArchive) }

// WordPhotosDir holds curated markdown word-photo notes.
func (e *Entity) WordPhotosDir() string { return filepath.Join(e.Root, wordPhotosDir) }

// TokenPath is the shared-secret file path.
func (e *Entity) TokenPath() string { return filepath.Join(e.Root, tokenFileName) }

// LockPath is the advisory project-lock file path (spec.md §3, §4.7 "Project lock").
func (e *Entity) LockPath() string { return filepath.Join(e.Root, lockFileName) }

// VerifyToken reports whether candidate matches this entity's shared secret,
// using a constant-time comparison since this gate sits on the RPC auth path
// (spec.md §4.8).
func (e *Entity) VerifyToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(e.token)) == 1
}

// RawToken returns the entity's shared secret, for callers (CLIs, tests)
// that must present it back over the RPC surface.
func (e *Entity) RawToken() string { return e.token }

func (e *Entity) loadOrCreateToken() (string, error) {
	path := e.TokenPath()
	b, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read token file: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(tok+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write token file: %w", err)
	}
	return tok, nil
}

// GroupID is the graph-client key this entity's nodes and edges are scoped
// under (spec.md §3 "group_id (= entity name)", §6 "group_id = entity_name
// (lowercase)").
func (e *Entity) GroupID() string {
	return strings.ToLower(e.Name)
}
