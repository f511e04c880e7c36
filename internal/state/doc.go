// Package state provides SQLite-backed storage implementations.
package state

import "github.com/T1murKa41/pixilgnang/internal/types"

// Compile-time interface compliance checks.
var _ types.SubmissionStore = (*SubmissionStore)(nil)
var _ types.CooldownStore = (*CooldownStore)(nil)
var _ types.PostStore = (*PostStore)(nil)
var _ types.UserDirectory = (*UserStore)(nil)
