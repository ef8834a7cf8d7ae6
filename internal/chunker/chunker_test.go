package chunker

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func requireContiguous(t *testing.T, ranges []Range, size int64) {
	t.Helper()

	var next int64
	for i, r := range ranges {
		require.Equalf(t, i+1, r.PartNumber, "part number at index %d", i)
		require.Equalf(t, next, r.Start, "part %d start", r.PartNumber)
		require.Greaterf(t, r.End, r.Start, "part %d is empty", r.PartNumber)
		next = r.End
	}
	require.Equal(t, size, next, "ranges must cover the whole file")
}

func TestPlanExactMultiple(t *testing.T) {
	t.Parallel()

	c := NewChunker(5*mib, 5*mib)
	size := int64(524288000)

	ranges, err := c.Plan(size)
	require.NoError(t, err, "Plan error")
	require.Len(t, ranges, 100, "part count")
	requireContiguous(t, ranges, size)

	for _, r := range ranges {
		require.Equalf(t, int64(5*mib), r.Size(), "part %d size", r.PartNumber)
	}
}

func TestPlanRebalancesShortTail(t *testing.T) {
	t.Parallel()

	c := NewChunker(5*mib, 5*mib)

	sizes := []int64{
		11 * mib,
		10*mib + 1,
		100*mib + 50,
		523*mib + 4*mib + 1234,
	}

	for _, size := range sizes {
		ranges, err := c.Plan(size)
		require.NoErrorf(t, err, "Plan(%d) error", size)
		require.Greaterf(t, len(ranges), 1, "Plan(%d) should be multipart", size)
		requireContiguous(t, ranges, size)

		for _, r := range ranges {
			require.GreaterOrEqualf(t, r.Size(), int64(5*mib), "Plan(%d) part %d below minimum", size, r.PartNumber)
		}
		require.Lessf(t, len(ranges), c.TotalChunks(size), "Plan(%d) should fold the short tail", size)
	}
}

func TestPlanSinglePartHasNoMinimum(t *testing.T) {
	t.Parallel()

	c := NewChunker(5*mib, 5*mib)

	ranges, err := c.Plan(1234)
	require.NoError(t, err, "Plan error")
	require.Len(t, ranges, 1, "part count")
	require.Equal(t, int64(1234), ranges[0].Size(), "single part size")
}

func TestPlanLargerChunkSize(t *testing.T) {
	t.Parallel()

	c := NewChunker(8*mib, 5*mib)
	size := int64(17 * mib)

	ranges, err := c.Plan(size)
	require.NoError(t, err, "Plan error")
	require.Len(t, ranges, 2, "part count")
	requireContiguous(t, ranges, size)
	require.Equal(t, int64(8*mib+mib/2), ranges[0].Size(), "uniform part size")
}

func TestPlanEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewChunker(5*mib, 5*mib).Plan(0)
	require.Error(t, err, "expected error for empty file")
}

func TestChunkSizeNeverBelowMinimum(t *testing.T) {
	t.Parallel()

	c := NewChunker(mib, 5*mib)
	require.Equal(t, int64(5*mib), c.ChunkSize(), "chunk size clamped to minimum")
}

func TestSection(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	sec := Section(bytes.NewReader(data), Range{PartNumber: 2, Start: 3, End: 7})

	got, err := io.ReadAll(sec)
	require.NoError(t, err, "reading section")
	require.Equal(t, "3456", string(got), "section bytes")
}
