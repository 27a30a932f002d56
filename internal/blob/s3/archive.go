package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// maxEvidenceSize bounds the size of an evidence payload read back from
// the archive.
const maxEvidenceSize = 1 << 20

// EvidenceArchive stores canonical evidence payloads under their content
// hash. Any BlobWriter/BlobReader pair works; production wires the S3
// Writer and Reader.
type EvidenceArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewEvidenceArchive creates an archive over the given blob store.
func NewEvidenceArchive(w domain.BlobWriter, r domain.BlobReader) *EvidenceArchive {
	return &EvidenceArchive{writer: w, reader: r}
}

// Store uploads canonical under evidence/<hash>.json unless an object with
// that hash already exists. Content addressing makes re-uploads redundant.
func (a *EvidenceArchive) Store(ctx context.Context, hash string, canonical []byte) error {
	path := domain.EvidencePath(hash)
	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive evidence %s: %w", hash, err)
		}
		if ok {
			return nil
		}
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(canonical), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive evidence %s: %w", hash, err)
	}
	return nil
}

// Load returns the archived canonical payload for hash.
func (a *EvidenceArchive) Load(ctx context.Context, hash string) ([]byte, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: load evidence %s: %w", hash, domain.ErrNotFound)
	}
	rc, err := a.reader.Get(ctx, domain.EvidencePath(hash))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEvidenceSize))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read evidence %s: %w", hash, err)
	}
	return data, nil
}
