package storage

import (
	"slices"
	"strings"

	"github.com/mcoot/proxymail/internal/model"
)

// ResolveName looks a username up in a directory snapshot: the console name
// first, then an exact match, then a case-insensitive scan. When several
// entries match case-insensitively, any one of them may be returned.
func ResolveName(directory map[string]model.Identity, name string) (model.Identity, bool) {
	if name == model.ConsoleName {
		return model.ConsoleIdentity, true
	}
	if id, ok := directory[name]; ok {
		return id, true
	}
	for username, id := range directory {
		if strings.EqualFold(username, name) {
			return id, true
		}
	}
	return model.Identity{}, false
}

// CheckUsername rejects directory keys no backend can store
func CheckUsername(username string) error {
	if username == "" {
		return model.NewStorageError(model.KindBackend, "update user", model.ErrEmptyUsername)
	}
	return nil
}

// UniqueIdentities returns the distinct values of a directory
func UniqueIdentities(directory map[string]model.Identity) []model.Identity {
	seen := make(map[model.Identity]struct{}, len(directory))
	ids := make([]model.Identity, 0, len(directory))
	for _, id := range directory {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// SortedUsernames returns the keys of a directory in lexical order
func SortedUsernames(directory map[string]model.Identity) []string {
	names := make([]string, 0, len(directory))
	for name := range directory {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
