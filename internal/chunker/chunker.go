package chunker

import (
	"errors"
	"io"
)

// Range is one part of a file, covering bytes [Start, End).
type Range struct {
	PartNumber int
	Start      int64
	End        int64
}

// Size returns the number of bytes in the range.
func (r Range) Size() int64 {
	return r.End - r.Start
}

// Chunker plans how a file is split into multipart parts
type Chunker struct {
	chunkSize   int64
	minPartSize int64
}

// NewChunker creates a new chunker with the specified chunk size. Every
// part except a lone single part will be at least minPartSize bytes.
func NewChunker(chunkSize, minPartSize int64) *Chunker {
	if chunkSize < minPartSize {
		chunkSize = minPartSize
	}
	return &Chunker{
		chunkSize:   chunkSize,
		minPartSize: minPartSize,
	}
}

// ChunkSize returns the naive part size.
func (c *Chunker) ChunkSize() int64 {
	return c.chunkSize
}

// TotalChunks returns ceil(size / chunkSize).
func (c *Chunker) TotalChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + c.chunkSize - 1) / c.chunkSize)
}

// Plan splits size bytes into contiguous 1-based ranges. When a naive split
// would leave a final part below the minimum, the tail is folded into a
// larger uniform part size so every part meets the minimum. The last part
// absorbs any remainder and is never smaller than the others.
func (c *Chunker) Plan(size int64) ([]Range, error) {
	if size <= 0 {
		return nil, errors.New("cannot plan an empty file")
	}

	count := c.TotalChunks(size)
	partSize := c.chunkSize

	last := size - int64(count-1)*partSize
	if count > 1 && last < c.minPartSize {
		count--
		partSize = size / int64(count)
	}

	ranges := make([]Range, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * partSize
		end := start + partSize
		if i == count-1 {
			end = size
		}
		ranges = append(ranges, Range{PartNumber: i + 1, Start: start, End: end})
	}

	return ranges, nil
}

// Section returns a reader over r limited to the bytes of rng.
func Section(r io.ReaderAt, rng Range) *io.SectionReader {
	return io.NewSectionReader(r, rng.Start, rng.Size())
}
