package storage

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/zots0127/filevault/internal/domain/entities"
)

const (
	maxFolderPartLen = 100
	maxFilenameLen   = 255
	truncatedNameLen = 250
	maxExtLen        = 16

	invalidFolderPart = "invalid"
	defaultFolderPart = "default"
	defaultFilename   = "unnamed_file"
)

const unsafeChars = `<>:"/\|?*`

func replaceUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(unsafeChars, r):
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		case r == utf8.RuneError:
			return '_'
		}
		return r
	}, s)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// SanitizeFolderPart makes one folder segment safe for a key and a path
func SanitizeFolderPart(raw string) string {
	part := strings.Trim(replaceUnsafe(raw), ". ")
	if part == "" || part == "." || part == ".." {
		part = invalidFolderPart
	}
	part = truncateRunes(part, maxFolderPartLen)
	if part == "" {
		return defaultFolderPart
	}
	return part
}

// ValidateOwner rejects owner ids that would not survive sanitization
// unchanged. Two such ids could share one directory and one quota.
func ValidateOwner(ownerID string) error {
	if ownerID == "" {
		return entities.NewValidationError("user_id", "user id is required")
	}
	if SanitizeFolderPart(ownerID) != ownerID {
		return entities.NewValidationError("user_id", "user id %q cannot be used as a storage owner", ownerID)
	}
	return nil
}

// SanitizeFolder splits a nested folder on "/" and sanitizes every segment.
// Blank segments are dropped.
func SanitizeFolder(folder string) []string {
	var parts []string
	for _, p := range strings.Split(folder, "/") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		parts = append(parts, SanitizeFolderPart(p))
	}
	return parts
}

// SanitizeFilename makes a filename safe, keeping its extension when it has
// to be shortened.
func SanitizeFilename(raw string) string {
	name := strings.Trim(replaceUnsafe(raw), ". ")
	if utf8.RuneCountInString(name) > maxFilenameLen {
		ext := path.Ext(name)
		if utf8.RuneCountInString(ext) > maxExtLen {
			ext = ""
		}
		keep := truncatedNameLen
		if room := maxFilenameLen - utf8.RuneCountInString(ext); room < keep {
			keep = room
		}
		name = truncateRunes(strings.TrimSuffix(name, ext), keep) + ext
	}
	if name == "" {
		return defaultFilename
	}
	return name
}
