package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/logger"
)

// File layout, all integers little-endian:
//
//	magic   [4]byte "FRIX"
//	version uint16
//	dim     uint32
//	model   uint16 length + bytes
//	meta    uint32 length + JSON array of chunk metadata
//	count   uint32
//	vectors count*dim float32
//	crc     uint32 IEEE over everything above
const (
	fileMagic   = "FRIX"
	fileVersion = 1
)

type chunkMeta struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Seq        int    `json:"seq"`
	Page       int    `json:"page"`
	EndPage    int    `json:"end_page"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	PageOffset int    `json:"page_offset"`
	Text       string `json:"text"`
}

// Save writes the current snapshot to a temporary file in the target
// directory, syncs it and renames it over the index file. Writers are not
// blocked while the file is written.
func (idx *Index) Save(ctx context.Context) error {
	if idx.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()

	snap := idx.snap.Load()

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best-effort cleanup; no-op after rename

	w := bufio.NewWriter(tmp)
	if err := idx.encode(w, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, idx.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	logger.Debug("saved %d chunks to %s", len(snap.records), idx.path)
	return nil
}

// Load replaces the in-memory state with the file contents. A missing file
// leaves the index empty. A file that fails validation also leaves the
// index empty and returns an error wrapping domain.ErrIndexCorrupt.
func (idx *Index) Load(ctx context.Context) error {
	if idx.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		idx.publish(emptySnapshot)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	snap, err := idx.decode(data)
	if err != nil {
		idx.publish(emptySnapshot)
		err = fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, idx.path, err)
		logger.Error(err, "discarding stored index, starting empty")
		return err
	}

	idx.publish(snap)
	logger.Debug("loaded %d chunks from %s", len(snap.records), idx.path)
	return nil
}

func (idx *Index) publish(s *snapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(s)
}

func (idx *Index) encode(w io.Writer, snap *snapshot) error {
	h := crc32.NewIEEE()
	mw := io.MultiWriter(w, h)

	meta := make([]chunkMeta, len(snap.records))
	for i, r := range snap.records {
		c := r.chunk
		meta[i] = chunkMeta{
			ID: c.ID, DocumentID: c.DocumentID, Seq: c.Seq,
			Page: c.Page, EndPage: c.EndPage,
			Start: c.Start, End: c.End, PageOffset: c.PageOffset,
			Text: c.Text,
		}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(mw, fileMagic); err != nil {
		return err
	}
	header := []any{
		uint16(fileVersion),
		uint32(idx.dim),
		uint16(len(idx.model)),
	}
	for _, v := range header {
		if err := binary.Write(mw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(mw, idx.model); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(len(metaJSON))); err != nil {
		return err
	}
	if _, err := mw.Write(metaJSON); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(len(snap.records))); err != nil {
		return err
	}

	buf := make([]byte, 4*idx.dim)
	for _, r := range snap.records {
		for i, x := range r.chunk.Embedding {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
		}
		if _, err := mw.Write(buf); err != nil {
			return err
		}
	}

	return binary.Write(w, binary.LittleEndian, h.Sum32())
}

func (idx *Index) decode(data []byte) (*snapshot, error) {
	if len(data) < len(fileMagic)+4 {
		return nil, errors.New("file too short")
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, errors.New("checksum mismatch")
	}

	r := bytes.NewReader(body)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, errors.New("bad magic")
	}

	var version uint16
	var dim uint32
	var modelLen uint16
	for _, v := range []any{&version, &dim, &modelLen} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	if int(dim) != idx.dim {
		return nil, fmt.Errorf("stored dimension %d, configured %d", dim, idx.dim)
	}
	model := make([]byte, modelLen)
	if _, err := io.ReadFull(r, model); err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	if idx.model != "" && string(model) != idx.model {
		return nil, fmt.Errorf("built with model %q, configured %q", model, idx.model)
	}

	var metaLen uint32
	if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("read metadata length: %w", err)
	}
	if int64(metaLen) > int64(r.Len()) {
		return nil, errors.New("metadata section truncated")
	}
	metaJSON := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaJSON); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta []chunkMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	if int(count) != len(meta) {
		return nil, fmt.Errorf("%d metadata records but %d vectors", len(meta), count)
	}
	if want := int64(count) * int64(dim) * 4; int64(r.Len()) != want {
		return nil, fmt.Errorf("vector section has %d bytes, want %d", r.Len(), want)
	}

	recs := make([]record, len(meta))
	buf := make([]byte, 4*int(dim))
	seen := make(map[string]struct{}, len(meta))
	for i, m := range meta {
		if _, dup := seen[m.ID]; dup || m.ID == "" {
			return nil, fmt.Errorf("invalid or duplicate chunk id %q", m.ID)
		}
		seen[m.ID] = struct{}{}

		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		c := domain.Chunk{
			ID: m.ID, DocumentID: m.DocumentID, Seq: m.Seq,
			Page: m.Page, EndPage: m.EndPage,
			Start: m.Start, End: m.End, PageOffset: m.PageOffset,
			Text: m.Text, Embedding: emb,
		}
		recs[i] = record{chunk: c, norm: norm(emb)}
	}

	return newSnapshot(recs), nil
}
