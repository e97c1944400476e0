package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"
	"gpustandby/pkg/sid"

	"github.com/pierrec/lz4/v4"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrCorruptSnapshot: the downloaded archive does not match the stored
// checksum. The engine never extracts from a corrupt archive.
var ErrCorruptSnapshot = errors.New("snapshot: archive checksum mismatch")

// RestoreResult reports what a completed restore wrote.
type RestoreResult struct {
	Bytes int64
	Files int64
}

type Engine struct {
	store         ObjectStore
	snapshotRepo  repository.SnapshotRepository
	sid           *sid.Sid
	logger        *log.Logger
	compression   string
	workspaceRoot string
}

func NewEngine(
	conf *viper.Viper,
	store ObjectStore,
	snapshotRepo repository.SnapshotRepository,
	sid *sid.Sid,
	logger *log.Logger,
) *Engine {
	compression := conf.GetString("storage.compression")
	if compression == "" {
		compression = model.CompressionLZ4
	}
	return &Engine{
		store:         store,
		snapshotRepo:  snapshotRepo,
		sid:           sid,
		logger:        logger,
		compression:   compression,
		workspaceRoot: conf.GetString("storage.workspace_root"),
	}
}

// WorkspacePath resolves the mounted workspace directory of an instance.
func (e *Engine) WorkspacePath(instanceID string) string {
	return filepath.Join(e.workspaceRoot, instanceID)
}

func compressionExt(compression string) string {
	if compression == model.CompressionGZIP {
		return "tar.gz"
	}
	return "tar.lz4"
}

func objectKey(instanceID, snapshotID, compression string) string {
	return fmt.Sprintf("%s/%s.%s", instanceID, snapshotID, compressionExt(compression))
}

// CreateSnapshot streams workspacePath as tar -> compressor -> object store.
// The archive is never materialized locally, so memory and disk use stay
// bounded regardless of workspace size. The content checksum is computed on
// the compressed stream during upload.
func (e *Engine) CreateSnapshot(ctx context.Context, instanceID, workspacePath string) (*model.Snapshot, error) {
	snapshotID, err := e.sid.GenString()
	if err != nil {
		return nil, err
	}
	key := objectKey(instanceID, snapshotID, e.compression)

	pr, pw := io.Pipe()
	hasher := sha256.New()
	counter := &countingWriter{}

	var fileCount int64
	go func() {
		mw := io.MultiWriter(pw, hasher, counter)
		cw, err := newCompressWriter(mw, e.compression)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		n, err := writeTar(cw, workspacePath)
		fileCount = n
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := cw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	if err := e.store.Put(ctx, key, pr); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}

	snap := &model.Snapshot{
		SnapshotID:       snapshotID,
		SourceInstanceID: instanceID,
		SizeBytes:        counter.n,
		Compression:      e.compression,
		StorageURI:       key,
		Checksum:         hex.EncodeToString(hasher.Sum(nil)),
		FileCount:        fileCount,
	}
	if err := e.snapshotRepo.Create(ctx, snap); err != nil {
		// the archive is orphaned without its row; drop it
		_ = e.store.Delete(ctx, key)
		return nil, err
	}

	e.logger.WithContext(ctx).Info("snapshot created",
		zap.String("snapshot_id", snapshotID),
		zap.String("source_instance_id", instanceID),
		zap.Int64("size_bytes", snap.SizeBytes),
		zap.String("compression", snap.Compression))
	return snap, nil
}

// RestoreSnapshot downloads the archive, verifies its checksum, and extracts
// it into the target instance's workspace. All-or-nothing: extraction happens
// in a staging directory that is promoted only after everything succeeded, so
// a failed restore leaves the target workspace untouched.
func (e *Engine) RestoreSnapshot(ctx context.Context, snapshotID, targetInstanceID string) (*RestoreResult, error) {
	snap, err := e.snapshotRepo.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %s not found", snapshotID)
	}

	obj, err := e.store.Get(ctx, snap.StorageURI)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// spool to a temp file while hashing; the checksum must be verified
	// before a single byte is extracted
	tmp, err := os.CreateTemp("", "snapshot-*.archive")
	if err != nil {
		return nil, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), obj); err != nil {
		return nil, err
	}
	if hex.EncodeToString(hasher.Sum(nil)) != snap.Checksum {
		return nil, ErrCorruptSnapshot
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	targetDir := e.WorkspacePath(targetInstanceID)
	stagingDir := targetDir + ".restoring"
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}

	result, err := extractTar(tmp, stagingDir, snap.Compression)
	if err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}

	if err := os.RemoveAll(targetDir); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}
	if err := os.Rename(stagingDir, targetDir); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}

	e.logger.WithContext(ctx).Info("snapshot restored",
		zap.String("snapshot_id", snapshotID),
		zap.String("target_instance_id", targetInstanceID),
		zap.Int64("bytes", result.Bytes),
		zap.Int64("files", result.Files))
	return result, nil
}

// DeleteSnapshot removes the archive and its row.
func (e *Engine) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	snap, err := e.snapshotRepo.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	if err := e.store.Delete(ctx, snap.StorageURI); err != nil {
		return err
	}
	return e.snapshotRepo.Delete(ctx, snapshotID)
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func newCompressWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case model.CompressionGZIP:
		return gzip.NewWriter(w), nil
	case model.CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}

func newDecompressReader(r io.Reader, compression string) (io.Reader, func() error, error) {
	switch compression {
	case model.CompressionGZIP:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, gr.Close, nil
	case model.CompressionLZ4:
		return lz4.NewReader(r), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown compression %q", compression)
	}
}

func writeTar(w io.Writer, root string) (int64, error) {
	tw := tar.NewWriter(w)
	var files int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return err
			}
			files++
		}
		return nil
	})
	if err != nil {
		return files, err
	}
	return files, tw.Close()
}

func extractTar(r io.Reader, dest string, compression string) (*RestoreResult, error) {
	dr, closeFn, err := newDecompressReader(r, compression)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	result := &RestoreResult{}
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(name, "..") {
			return nil, fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		target := filepath.Join(dest, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, err
			}
			n, err := io.Copy(f, tr)
			f.Close()
			if err != nil {
				return nil, err
			}
			if err := os.Chtimes(target, time.Now(), hdr.ModTime); err != nil {
				return nil, err
			}
			result.Bytes += n
			result.Files++
		}
	}
	return result, nil
}
