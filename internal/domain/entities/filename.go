package entities

import "strings"

// KeyPrefix is the first segment of every stored file key
const KeyPrefix = "storage"

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsReservedName reports whether name is a device name, with or without an
// extension, compared case-insensitively
func IsReservedName(name string) bool {
	base := strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return reservedNames[base]
}

// ValidateFilename rejects names that must never reach the layout engine:
// empty names, path separators, traversal and reserved device names.
func ValidateFilename(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError(field, "filename is empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return NewValidationError(field, "invalid filename: %s", name)
	}
	if strings.ContainsRune(name, 0) {
		return NewValidationError(field, "filename contains a NUL byte")
	}
	if IsReservedName(name) {
		return NewValidationError(field, "reserved filename: %s", name)
	}
	return nil
}

// OwnerFromKey returns the owner segment of a key
func OwnerFromKey(key string) string {
	segments := strings.Split(key, "/")
	if len(segments) < 2 {
		return ""
	}
	return segments[1]
}

// FolderFromKey returns the folder segments between owner and filename
func FolderFromKey(key string) string {
	segments := strings.Split(key, "/")
	if len(segments) <= 3 {
		return ""
	}
	return strings.Join(segments[2:len(segments)-1], "/")
}
