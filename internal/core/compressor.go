package core

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// ZipWriter streams named entries into a zip archive in the order they
// are added. Duplicate names are kept as separate entries.
type ZipWriter struct {
	zw      *zip.Writer
	entries []string
	now     func() time.Time
}

func NewZipWriter(w io.Writer) *ZipWriter {
	return &ZipWriter{
		zw:  zip.NewWriter(w),
		now: time.Now,
	}
}

// Create starts a new Deflate-compressed entry and returns a writer for
// its content. The writer is valid until the next Create or Close.
func (z *ZipWriter) Create(archivePath string) (io.Writer, error) {
	header := &zip.FileHeader{
		Name:     archivePath,
		Method:   zip.Deflate,
		Modified: z.now(),
	}
	header.SetMode(0644)

	writer, err := z.zw.CreateHeader(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip entry %s: %w", archivePath, err)
	}
	z.entries = append(z.entries, archivePath)
	return writer, nil
}

// Entries returns the entry names written so far.
func (z *ZipWriter) Entries() []string {
	return append([]string(nil), z.entries...)
}

// Close writes the central directory. It does not close the underlying writer.
func (z *ZipWriter) Close() error {
	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}
