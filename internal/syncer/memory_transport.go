package syncer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// MemoryTransport is an in-process Transport used by tests and local
// development. Each instance gets an independent in-memory workspace.
type MemoryTransport struct {
	mu         sync.Mutex
	workspaces map[string]map[string]memFile

	// Unreachable simulates a dead instance: every call against it fails.
	unreachable map[string]bool
}

type memFile struct {
	info FileInfo
	data []byte
}

var errUnreachable = errors.New("syncer: instance unreachable")

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		workspaces:  make(map[string]map[string]memFile),
		unreachable: make(map[string]bool),
	}
}

func (t *MemoryTransport) SetUnreachable(instanceID string, down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable[instanceID] = down
}

// PutFile seeds or mutates a workspace file directly.
func (t *MemoryTransport) PutFile(instanceID string, info FileInfo, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws := t.workspaces[instanceID]
	if ws == nil {
		ws = make(map[string]memFile)
		t.workspaces[instanceID] = ws
	}
	info.Size = int64(len(data))
	ws[info.Path] = memFile{info: info, data: append([]byte(nil), data...)}
}

// FileData returns a workspace file's content, for assertions.
func (t *MemoryTransport) FileData(instanceID, path string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.workspaces[instanceID][path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

func (t *MemoryTransport) Probe(ctx context.Context, instanceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[instanceID] {
		return errUnreachable
	}
	return nil
}

func (t *MemoryTransport) ListFiles(ctx context.Context, instanceID string) ([]FileInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[instanceID] {
		return nil, errUnreachable
	}
	var files []FileInfo
	for _, f := range t.workspaces[instanceID] {
		files = append(files, f.info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (t *MemoryTransport) ReadFile(ctx context.Context, instanceID, path string) (io.ReadCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[instanceID] {
		return nil, errUnreachable
	}
	f, ok := t.workspaces[instanceID][path]
	if !ok {
		return nil, errors.New("syncer: file not found: " + path)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (t *MemoryTransport) WriteFile(ctx context.Context, instanceID, path string, info FileInfo, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[instanceID] {
		return errUnreachable
	}
	ws := t.workspaces[instanceID]
	if ws == nil {
		ws = make(map[string]memFile)
		t.workspaces[instanceID] = ws
	}
	info.Path = path
	info.Size = int64(len(data))
	ws[path] = memFile{info: info, data: data}
	return nil
}
