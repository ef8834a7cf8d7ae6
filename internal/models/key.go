package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultExtension = "bin"

// ObjectKey is the parsed form of a storage key
// "{category}/{ownerId}/{timestamp}-{random}.{ext}".
type ObjectKey struct {
	Category Category
	OwnerID  string
	Name     string
}

// String renders the key in its storage form.
func (k ObjectKey) String() string {
	return string(k.Category) + "/" + k.OwnerID + "/" + k.Name
}

// NewObjectKey mints a fresh key for ownerID. The random suffix makes keys
// distinct even for identical file names minted in the same millisecond.
func NewObjectKey(category Category, ownerID, fileName string, now time.Time) (ObjectKey, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, "/\\") {
		return ObjectKey{}, fmt.Errorf("invalid owner id %q", ownerID)
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	name := fmt.Sprintf("%d-%s.%s", now.UnixMilli(), suffix, extensionOf(fileName))

	return ObjectKey{Category: category, OwnerID: ownerID, Name: name}, nil
}

// ParseObjectKey splits a storage key into its namespace segments.
func ParseObjectKey(key string) (ObjectKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ObjectKey{}, fmt.Errorf("malformed object key %q", key)
	}

	category, err := ParseCategory(parts[0])
	if err != nil {
		return ObjectKey{}, err
	}

	return ObjectKey{Category: category, OwnerID: parts[1], Name: parts[2]}, nil
}

// OwnedBy reports whether key lives in ownerID's namespace. Malformed keys
// are owned by nobody.
func OwnedBy(key, ownerID string) bool {
	if ownerID == "" {
		return false
	}
	k, err := ParseObjectKey(key)
	if err != nil {
		return false
	}
	return k.OwnerID == ownerID
}

// extensionOf returns the lower-cased alphanumeric extension of fileName.
func extensionOf(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ext == "" || len(ext) > 10 {
		return defaultExtension
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return defaultExtension
		}
	}
	return ext
}
