// Package persist writes fitted pipelines to disk and reads them back.
//
// An artifact is the 8-byte magic "DRPMODEL", a big-endian uint16 format
// version, then the gob-encoded pipeline snapshot compressed with zstd.
package persist

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
)

// FormatVersion is the artifact layout written by Save.
const FormatVersion uint16 = 1

var magic = [8]byte{'D', 'R', 'P', 'M', 'O', 'D', 'E', 'L'}

// ErrBadArtifact is returned when a file is not a readable model artifact.
var ErrBadArtifact = errors.New("not a model artifact")

// Save writes the fitted pipeline p to path on fs. The artifact is written
// to a temp file beside path, synced and renamed into place, so path holds
// either the previous file or the complete new one.
func Save(fs afero.Fs, path string, p *pipeline.Pipeline) (err error) {
	snap, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = fs.Remove(tmpName)
		}
	}()

	counter := &countingWriter{w: tmp}
	if err = encode(counter, snap); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync model file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}

	slog.Info("Saved model",
		"path", path,
		"size", humanize.Bytes(uint64(counter.n)),
		"categories", len(snap.Categories),
		"vocabulary", len(snap.Vocabulary))
	return nil
}

func encode(w io.Writer, snap *pipeline.Snapshot) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress model: %w", err)
	}
	return nil
}

// Load reads the artifact at path and reattaches tok to the restored
// pipeline.
func Load(fs afero.Fs, path string, tok pipeline.Tokenizer) (*pipeline.Pipeline, error) {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: model %s", common.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := pipeline.Restore(snap, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArtifact, err)
	}
	common.LogDebug("Loaded model", common.Fields{"path": path, "categories": p.NumOutputs()})
	return p, nil
}

func decode(r io.Reader) (*pipeline.Snapshot, error) {
	var header [len(magic)]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrBadArtifact)
	}
	if header != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadArtifact, header[:])
	}
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrBadArtifact)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrBadArtifact, version, FormatVersion)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArtifact, err)
	}
	defer zr.Close()

	var snap pipeline.Snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArtifact, err)
	}
	return &snap, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
