// Package files stages content-addressed testdata and submitted files from
// object storage onto local disk for the execution engine.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"orbitoj/internal/common/storage"
	"orbitoj/internal/judge/model"
	appErr "orbitoj/pkg/errors"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// compressedSuffix marks objects stored zstd-compressed; they are staged
// decompressed under their plain content id.
const compressedSuffix = ".zst"

// Store downloads content-addressed objects into a local root directory.
// An object is downloaded at most once per root; later EnsureFiles calls
// for the same id are satisfied from disk.
type Store struct {
	storage storage.ObjectStorage
	bucket  string
	root    string

	mu     sync.Mutex
	staged map[model.ContentID]struct{}
}

// NewStore creates a staging store rooted at dir.
func NewStore(objStorage storage.ObjectStorage, bucket, dir string) (*Store, error) {
	if objStorage == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("object storage is required")
	}
	if dir == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("staging root is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.FileStagingFailed, "create staging root failed")
	}
	return &Store{
		storage: objStorage,
		bucket:  bucket,
		root:    filepath.Clean(dir),
		staged:  make(map[model.ContentID]struct{}),
	}, nil
}

// EnsureFiles guarantees every named object is present locally before
// testcase execution begins. It fails if any identifier cannot be resolved.
func (s *Store) EnsureFiles(ctx context.Context, ids []model.ContentID) error {
	for _, id := range ids {
		if err := s.ensureOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the local path an ensured object was staged at.
func (s *Store) Path(id model.ContentID) string {
	return filepath.Join(s.root, string(id))
}

func (s *Store) ensureOne(ctx context.Context, id model.ContentID) error {
	if id == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("content id is required")
	}
	s.mu.Lock()
	_, ok := s.staged[id]
	s.mu.Unlock()
	if ok {
		return nil
	}
	if _, err := os.Stat(s.Path(id)); err == nil {
		s.markStaged(id)
		return nil
	}

	reader, compressed, err := s.open(ctx, id)
	if err != nil {
		return err
	}
	defer reader.Close()

	var src io.Reader = reader
	if compressed {
		dec, err := zstd.NewReader(reader)
		if err != nil {
			return appErr.Wrapf(err, appErr.FileStagingFailed, "open zstd stream failed: %s", id)
		}
		defer dec.Close()
		src = dec
	}

	if err := writeAtomic(s.Path(id), src); err != nil {
		return appErr.Wrapf(err, appErr.FileStagingFailed, "stage file failed: %s", id)
	}
	s.markStaged(id)
	return nil
}

// open tries the plain object first, then its zstd-compressed variant.
func (s *Store) open(ctx context.Context, id model.ContentID) (io.ReadCloser, bool, error) {
	reader, err := s.storage.GetObject(ctx, s.bucket, string(id))
	if err == nil {
		// MinIO defers the actual request until first read; a stat
		// confirms the object exists before we commit to it.
		if _, statErr := s.storage.StatObject(ctx, s.bucket, string(id)); statErr == nil {
			return reader, false, nil
		}
		_ = reader.Close()
	}
	compressed, err := s.storage.GetObject(ctx, s.bucket, string(id)+compressedSuffix)
	if err == nil {
		if _, statErr := s.storage.StatObject(ctx, s.bucket, string(id)+compressedSuffix); statErr == nil {
			return compressed, true, nil
		}
		_ = compressed.Close()
	}
	return nil, false, appErr.Newf(appErr.FileNotFound, "content %s not found in storage", id)
}

func (s *Store) markStaged(id model.ContentID) {
	s.mu.Lock()
	s.staged[id] = struct{}{}
	s.mu.Unlock()
}

func writeAtomic(path string, src io.Reader) error {
	tmp := path + ".tmp-" + uuid.NewString()
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, src); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// SubmittedFile is a staged copy of the optional submitted file. Dispose
// must be called exactly once, unconditionally, at submission end.
type SubmittedFile struct {
	path string

	mu       sync.Mutex
	disposed bool
}

// Path returns the staged location of the submitted file.
func (f *SubmittedFile) Path() string {
	return f.path
}

// Dispose releases the staged resource. Further calls are no-ops.
func (f *SubmittedFile) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil
	}
	f.disposed = true
	return os.RemoveAll(filepath.Dir(f.path))
}

// FetchSubmitted stages the submitted file into a scratch directory,
// verifying its sha256 when the metadata carries one.
func (s *Store) FetchSubmitted(ctx context.Context, meta *model.FileMeta) (*SubmittedFile, error) {
	if meta == nil || meta.ContentID == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submitted file metadata is required")
	}
	name := meta.Filename
	if name == "" {
		name = string(meta.ContentID)
	}
	dir := filepath.Join(s.root, "submitted-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.FileStagingFailed, "create scratch dir failed")
	}

	reader, err := s.storage.GetObject(ctx, s.bucket, string(meta.ContentID))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.FileNotFound, "fetch submitted file failed")
	}
	defer reader.Close()

	path := filepath.Join(dir, filepath.Base(name))
	file, err := os.Create(path)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.FileStagingFailed, "create submitted file failed")
	}

	hasher := sha256.New()
	if _, err := io.Copy(file, io.TeeReader(reader, hasher)); err != nil {
		_ = file.Close()
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.FileStagingFailed, "write submitted file failed")
	}
	if err := file.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.FileStagingFailed, "close submitted file failed")
	}

	if meta.SHA256 != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, meta.SHA256) {
			_ = os.RemoveAll(dir)
			return nil, appErr.New(appErr.FileHashMismatch).WithMessage("submitted file hash mismatch")
		}
	}
	return &SubmittedFile{path: path}, nil
}
