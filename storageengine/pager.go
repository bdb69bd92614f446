// Package storageengine is the disk-backed record store behind the
// RecordStore/Cursor narrow interface the executor and catalog consume.
//
// It is responsible for:
//  1. Pager: direct disk I/O, managing a single data file split into 8KB pages.
//  2. BufferPool: an SLRU in-memory cache to minimize disk access.
//  3. BPlusTree: the core indexing data structure for fast retrieval.
//  4. Page: the fundamental unit of storage, containing header and raw data.
package storageengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// Pager manages disk I/O for fixed-size pages backing one RecordStore's
// data file.
type Pager struct {
	file       *os.File
	mu         sync.RWMutex
	nextPageID PageID
}

// NewPager opens (creating if necessary) the single data file at filename
// and positions the allocator past whatever pages it already holds.
func NewPager(filename string) (*Pager, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", util.ErrDiskReadFailed, err)
	}

	nextPageID := PageID(info.Size() / PageSize)

	return &Pager{file: file, nextPageID: nextPageID}, nil
}

// AllocatePage reserves a new PageID and extends the file to cover it.
func (p *Pager) AllocatePage() (PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageID := p.nextPageID
	p.nextPageID++

	newSize := int64(p.nextPageID) * PageSize
	if err := p.file.Truncate(newSize); err != nil {
		return 0, fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}
	return pageID, nil
}

// ReadPage reads one page's data from disk.
func (p *Pager) ReadPage(pageID PageID) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if pageID >= p.nextPageID {
		return nil, util.ErrInvalidPageID
	}

	page := &Page{ID: pageID}
	offset := int64(pageID) * PageSize

	n, err := p.file.ReadAt(page.Data[:], offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("%w: %v", util.ErrDiskReadFailed, err)
	}
	return page, nil
}

// WritePage persists page to its slot and clears its dirty flag.
func (p *Pager) WritePage(page *Page) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if page.ID >= p.nextPageID {
		return util.ErrInvalidPageID
	}

	offset := int64(page.ID) * PageSize
	if _, err := p.file.WriteAt(page.Data[:], offset); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}

	page.mu.Lock()
	page.IsDirty = false
	page.mu.Unlock()
	return nil
}

// Sync flushes all pending writes to disk. Ordinary commits rely on the
// WAL's own fsync for durability; this is only called at checkpoints.
func (p *Pager) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}
	return nil
}

// Close flushes and releases the underlying file descriptor.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}
	return p.file.Close()
}

// GetNextPageID returns the next PageID AllocatePage would hand out.
func (p *Pager) GetNextPageID() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPageID
}
