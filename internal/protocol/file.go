package protocol

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileMetadata is the framed control record that precedes a raw byte stream.
type FileMetadata struct {
	Type string `json:"type"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// FileMetadataType is the discriminator value for FileMetadata frames.
const FileMetadataType = "FILE_METADATA"

// SendFile streams one file: a framed FILE_METADATA record, then exactly
// size raw bytes in FileChunkSize chunks with no framing.
func SendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	meta := FileMetadata{
		Type: FileMetadataType,
		Size: info.Size(),
		Name: filepath.Base(path),
	}
	if err := WriteMessage(w, meta); err != nil {
		return fmt.Errorf("sending file metadata: %w", err)
	}

	buf := make([]byte, FileChunkSize)
	var sent int64
	for sent < meta.Size {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("sending file bytes: %w", werr)
			}
			sent += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if sent != meta.Size {
		return fmt.Errorf("short send for %s: %d of %d bytes", path, sent, meta.Size)
	}
	return nil
}

// RecvFile receives one file streamed by SendFile and writes it to savePath,
// creating parent directories as needed. A short read aborts the transfer.
func RecvFile(r io.Reader, savePath string) error {
	var meta FileMetadata
	if err := ReadInto(r, &meta); err != nil {
		return fmt.Errorf("receiving file metadata: %w", err)
	}
	if meta.Type != FileMetadataType {
		return fmt.Errorf("expected %s frame, got %q", FileMetadataType, meta.Type)
	}
	if meta.Size < 0 {
		return fmt.Errorf("invalid file size: %d", meta.Size)
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", savePath, err)
	}

	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", savePath, err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, r, meta.Size); err != nil {
		return fmt.Errorf("receiving file bytes for %s: %w", savePath, err)
	}
	return nil
}
