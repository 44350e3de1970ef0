// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable client-side persistence for chat sessions.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/supportwidget/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore persists each key as a JSON file under a base directory.
// Writes are atomic (temp file + fsync + rename), so a crash leaves either
// the old value or the new complete value, never a torn file.
type FileStore struct {
	// BaseDir is the directory holding one file per key.
	// Default: ~/.supportwidget/state/
	BaseDir string
}

// NewFileStore creates a file store under the user's home directory.
func NewFileStore() (*FileStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(homeDir, ".supportwidget", "state")
	return NewFileStoreWithDir(baseDir)
}

// NewFileStoreWithDir creates a file store with a custom directory.
func NewFileStoreWithDir(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// Get returns the value stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores value under key, replacing any previous value.
func (s *FileStore) Set(key string, value []byte) error {
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	return util.AtomicWriteFile(s.filePath(key), value, 0644)
}

// Delete removes the value stored under key.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.filePath(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrKeyNotFound
		}
		return err
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// filePath returns the file path for a key. Keys are fixed identifiers, but
// separators are stripped anyway so a key can never escape the base dir.
func (s *FileStore) filePath(key string) string {
	key = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '.' {
			return '_'
		}
		return r
	}, key)
	return filepath.Join(s.BaseDir, fmt.Sprintf("%s.json", key))
}
