package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewObjectKeyFormat(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000123)
	key, err := NewObjectKey(CategoryModelFile, "u1", "voice.zip", now)
	require.NoError(t, err, "NewObjectKey error")

	require.Regexp(t, `^model-file/u1/1700000000123-[0-9a-f]{16}\.zip$`, key.String(), "key format")
}

func TestNewObjectKeyUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		key, err := NewObjectKey(CategoryCover, "u1", "same.png", now)
		require.NoError(t, err, "NewObjectKey error")
		require.Falsef(t, seen[key.String()], "duplicate key %s", key)
		seen[key.String()] = true
	}
}

func TestNewObjectKeyRejectsBadOwner(t *testing.T) {
	t.Parallel()

	_, err := NewObjectKey(CategoryCover, "", "a.png", time.Now())
	require.Error(t, err, "expected error for empty owner")

	_, err = NewObjectKey(CategoryCover, "u1/../u2", "a.png", time.Now())
	require.Error(t, err, "expected error for owner containing a slash")
}

func TestExtensionFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{name: "simple", fileName: "voice.ZIP", want: "zip"},
		{name: "no extension", fileName: "README", want: "bin"},
		{name: "odd characters", fileName: "x.t@r", want: "bin"},
		{name: "double", fileName: "data.tar.gz", want: "gz"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, extensionOf(tc.fileName), "extension")
		})
	}
}

func TestOwnedBy(t *testing.T) {
	t.Parallel()

	require.True(t, OwnedBy("cover/u1/1-abc.png", "u1"), "owner match")
	require.False(t, OwnedBy("cover/u1/1-abc.png", "u2"), "owner mismatch")
	require.False(t, OwnedBy("cover/u1/1-abc.png", ""), "empty owner")
	require.False(t, OwnedBy("u1/1-abc.png", "u1"), "too few segments")
	require.False(t, OwnedBy("cover/u1/sub/1-abc.png", "u1"), "too many segments")
	require.False(t, OwnedBy("nope/u1/1-abc.png", "u1"), "unknown category")
}

func TestCategoryRules(t *testing.T) {
	t.Parallel()

	require.True(t, CategoryCover.Allows("image/png"), "cover png")
	require.False(t, CategoryCover.Allows("application/zip"), "cover zip")
	require.True(t, CategoryReferenceAudio.Allows("audio/mpeg"), "reference mpeg")
	require.True(t, CategoryDemoAudio.Allows("audio/m4a"), "demo m4a")
	require.True(t, CategoryModelFile.Allows("application/octet-stream"), "model octet-stream")
	require.False(t, CategoryDatasetFile.Allows("application/octet-stream"), "dataset octet-stream")
	require.True(t, CategoryDatasetFile.Allows("application/x-7z-compressed"), "dataset 7z")
	require.True(t, CategoryGeneral.Allows("text/plain"), "general accepts anything")
	require.True(t, CategoryCover.Allows("IMAGE/PNG; charset=binary"), "parameters ignored")

	require.NoError(t, CategoryModelFile.CheckSize(524288000), "500 MB model")
	require.Error(t, CategoryModelFile.CheckSize(524288001), "over 500 MB model")
	require.Error(t, CategoryCover.CheckSize(5*1024*1024+1), "over 5 MB cover")
	require.Equal(t, int64(500*1024*1024), MaxCategorySize(), "largest limit")

	_, err := ParseCategory("avatar")
	require.Error(t, err, "unknown category")
}

func TestValidateParts(t *testing.T) {
	t.Parallel()

	full := make([]UploadPart, 0, 100)
	for i := 1; i <= 100; i++ {
		full = append(full, UploadPart{PartNumber: i, ETag: "etag"})
	}
	require.NoError(t, ValidateParts(full, 100), "complete list")
	require.NoError(t, ValidateParts(full, 0), "complete list, unknown total")

	missing := append([]UploadPart{}, full[:56]...)
	missing = append(missing, full[57:]...)
	err := ValidateParts(missing, 100)
	require.Error(t, err, "missing part 57")
	require.True(t, strings.Contains(err.Error(), "57"), "error names the missing part")
	require.Error(t, ValidateParts(missing, 0), "gap detected without declared total")

	dup := append([]UploadPart{}, full[:99]...)
	dup = append(dup, UploadPart{PartNumber: 99, ETag: "etag"})
	require.Error(t, ValidateParts(dup, 100), "duplicate part")

	require.Error(t, ValidateParts([]UploadPart{{PartNumber: 1}}, 1), "missing etag")
	require.Error(t, ValidateParts(nil, 1), "empty list")
	require.Error(t, ValidateParts([]UploadPart{{PartNumber: 0, ETag: "x"}}, 1), "part zero")
}

func TestSortParts(t *testing.T) {
	t.Parallel()

	parts := []UploadPart{{PartNumber: 3}, {PartNumber: 1}, {PartNumber: 2}}
	SortParts(parts)
	require.Equal(t, []int{1, 2, 3}, []int{parts[0].PartNumber, parts[1].PartNumber, parts[2].PartNumber}, "sorted order")
}
