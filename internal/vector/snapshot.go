package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot layout. <path> holds the vectors:
//
//	magic "SLVX" | version uint32 | snapshot uuid [16]byte | dim uint32 | count uint64 | count*dim float32
//
// all little endian. <path>.ids holds the gob-encoded idMapping for the same snapshot.
const (
	snapshotMagic   = "SLVX"
	snapshotVersion = uint32(1)
	headerSize      = 4 + 4 + 16 + 4 + 8
	idsSuffix       = ".ids"
)

type idMapping struct {
	SnapshotID uuid.UUID
	IDs        []int64
}

// IDsPath returns the side-file path holding the slot to id mapping for path.
func IDsPath(path string) string {
	return path + idsSuffix
}

// Save writes the current snapshot to path and IDsPath(path). Both files are
// written to temporaries and fsync'd first; the mapping is renamed into place
// before the vector blob, so a crash in between is detected by Load as a
// snapshot id mismatch.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	s := m.current.Load()
	if s == nil {
		s = &snapshot{id: uuid.New()}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	var ids bytes.Buffer
	if err := gob.NewEncoder(&ids).Encode(idMapping{SnapshotID: s.id, IDs: s.ids}); err != nil {
		return fmt.Errorf("encode id mapping: %w", err)
	}
	idsTmp, err := writeTemp(dir, filepath.Base(path)+idsSuffix+".*.tmp", ids.Bytes())
	if err != nil {
		return fmt.Errorf("write id mapping: %w", err)
	}
	blobTmp, err := writeTemp(dir, filepath.Base(path)+".*.tmp", encodeBlob(s))
	if err != nil {
		os.Remove(idsTmp)
		return fmt.Errorf("write index blob: %w", err)
	}

	if err := os.Rename(idsTmp, IDsPath(path)); err != nil {
		os.Remove(idsTmp)
		os.Remove(blobTmp)
		return fmt.Errorf("install id mapping: %w", err)
	}
	if err := os.Rename(blobTmp, path); err != nil {
		os.Remove(blobTmp)
		return fmt.Errorf("install index blob: %w", err)
	}
	m.logger.Debug("Vector index saved",
		zap.String("path", path),
		zap.Int("entries", len(s.ids)),
		zap.String("snapshot", s.id.String()))
	return nil
}

// Load replaces the index with the snapshot at path. It reports false with a nil
// error when no snapshot exists. Any inconsistency between the two files yields
// ErrCorruptSnapshot and leaves the index unchanged.
func (m *MemoryIndex) Load(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read index blob: %w", err)
	}
	s, err := decodeBlob(blob)
	if err != nil {
		return false, err
	}

	raw, err := os.ReadFile(IDsPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: id mapping %s is missing", ErrCorruptSnapshot, IDsPath(path))
		}
		return false, fmt.Errorf("read id mapping: %w", err)
	}
	var mapping idMapping
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&mapping); err != nil {
		return false, fmt.Errorf("%w: decode id mapping: %v", ErrCorruptSnapshot, err)
	}
	if mapping.SnapshotID != s.id {
		return false, fmt.Errorf("%w: id mapping belongs to snapshot %s, blob is %s", ErrCorruptSnapshot, mapping.SnapshotID, s.id)
	}
	if len(mapping.IDs) != len(s.ids) {
		return false, fmt.Errorf("%w: id mapping has %d entries, blob has %d", ErrCorruptSnapshot, len(mapping.IDs), len(s.ids))
	}
	s.ids = mapping.IDs
	if s.ids == nil {
		s.ids = []int64{}
	}

	m.mu.Lock()
	m.current.Store(s)
	m.mu.Unlock()
	m.logger.Info("Vector index loaded",
		zap.String("path", path),
		zap.Int("entries", len(s.ids)),
		zap.Int("dimension", s.dim))
	return true, nil
}

func encodeBlob(s *snapshot) []byte {
	buf := make([]byte, headerSize, headerSize+len(s.data)*4)
	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:8], snapshotVersion)
	copy(buf[8:24], s.id[:])
	binary.LittleEndian.PutUint32(buf[24:28], uint32(s.dim))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(len(s.ids)))
	return append(buf, float32SliceToBytes(s.data)...)
}

// decodeBlob parses the vector file; ids are filled with placeholders sized to count.
func decodeBlob(b []byte) (*snapshot, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: blob is %d bytes, shorter than its header", ErrCorruptSnapshot, len(b))
	}
	if string(b[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}
	var id uuid.UUID
	copy(id[:], b[8:24])
	dim := int(binary.LittleEndian.Uint32(b[24:28]))
	count := binary.LittleEndian.Uint64(b[28:36])

	body := b[headerSize:]
	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("%w: %d entries with zero dimension", ErrCorruptSnapshot, count)
	}
	if dim > 0 && count > uint64(len(body))/uint64(dim*4) {
		return nil, fmt.Errorf("%w: blob truncated (%d entries declared, %d bytes of data)", ErrCorruptSnapshot, count, len(body))
	}
	if uint64(len(body)) != count*uint64(dim)*4 {
		return nil, fmt.Errorf("%w: blob holds %d bytes of data, expected %d", ErrCorruptSnapshot, len(body), count*uint64(dim)*4)
	}
	return &snapshot{
		id:   id,
		dim:  dim,
		ids:  make([]int64, count),
		data: bytesToFloat32Slice(body),
	}, nil
}

func writeTemp(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
