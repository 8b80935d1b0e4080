// Package storage contains the in-memory persistence used by the single
// binary mode and by tests. A single RWMutex stands in for the per-file row
// locks of the Postgres repository.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

var _ pipeline.Store = (*MemoryStore)(nil)

// MemoryStore keeps files, products and images in maps. Callbacks run while
// the write lock is held and must not call back into the store.
type MemoryStore struct {
	mu        sync.RWMutex
	files     map[string]*model.File
	products  map[string]*model.Product
	images    map[string]*model.Image
	byFile    map[string][]string
	byProduct map[string][]string
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:     make(map[string]*model.File),
		products:  make(map[string]*model.Product),
		images:    make(map[string]*model.Image),
		byFile:    make(map[string][]string),
		byProduct: make(map[string][]string),
	}
}

func (m *MemoryStore) CreateFile(_ context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec := *f
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.files[rec.ID] = &rec
	return nil
}

// GetFile returns a copy of the file.
func (m *MemoryStore) GetFile(_ context.Context, id string) (*model.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, model.ErrFileNotFound
	}
	copy := *rec
	return &copy, nil
}

func (m *MemoryStore) UpdateFile(_ context.Context, id string, fn func(f *model.File) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateFile(id, fn)
}

func (m *MemoryStore) updateFile(id string, fn func(f *model.File) error) error {
	rec, ok := m.files[id]
	if !ok {
		return model.ErrFileNotFound
	}
	next := *rec
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	m.files[id] = &next
	return nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, id string, guard func(f *model.File) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return model.ErrFileNotFound
	}
	copy := *rec
	if err := guard(&copy); err != nil {
		return err
	}
	for _, pid := range m.byFile[id] {
		for _, iid := range m.byProduct[pid] {
			delete(m.images, iid)
		}
		delete(m.byProduct, pid)
		delete(m.products, pid)
	}
	delete(m.byFile, id)
	delete(m.files, id)
	return nil
}

func (m *MemoryStore) RegisterProducts(_ context.Context, fileID string, products []model.Product, images []model.Image, fn func(f *model.File) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateFile(fileID, fn); err != nil {
		return err
	}
	for i := range products {
		prod := products[i]
		m.products[prod.ID] = &prod
		m.byFile[fileID] = append(m.byFile[fileID], prod.ID)
	}
	for i := range images {
		img := images[i]
		m.images[img.ID] = &img
		m.byProduct[img.ProductID] = append(m.byProduct[img.ProductID], img.ID)
	}
	return nil
}

func (m *MemoryStore) ListProducts(_ context.Context, fileID string) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Product, 0, len(m.byFile[fileID]))
	for _, pid := range m.byFile[fileID] {
		out = append(out, *m.products[pid])
	}
	return out, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prod, ok := m.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	copy := *prod
	return &copy, nil
}

func (m *MemoryStore) ResetRegeneration(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; !ok {
		return model.ErrFileNotFound
	}
	for _, pid := range m.byFile[fileID] {
		prod := m.products[pid]
		prod.FilteredDescription = nil
		prod.Changed = nil
	}
	return nil
}

func (m *MemoryStore) SaveRegeneration(_ context.Context, productID, filtered string, changed bool, settle pipeline.SettleFunc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prod, ok := m.products[productID]
	if !ok {
		return false, model.ErrProductNotFound
	}
	if prod.Regenerated() {
		return false, nil
	}
	pending := 0
	for _, pid := range m.byFile[prod.FileID] {
		if pid != productID && !m.products[pid].Regenerated() {
			pending++
		}
	}
	err := m.updateFile(prod.FileID, func(f *model.File) error {
		return settle(f, pending)
	})
	if err != nil {
		return false, err
	}
	prod.FilteredDescription = &filtered
	prod.Changed = &changed
	return true, nil
}

// ListImages returns matching images grouped by product in insertion order.
func (m *MemoryStore) ListImages(_ context.Context, q model.ImageQuery) ([]model.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Image
	for _, img := range m.fileImages(q.FileID, q.ProductID) {
		if q.Matches(img.Type) {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (m *MemoryStore) fileImages(fileID, productID string) []*model.Image {
	var out []*model.Image
	for _, pid := range m.byFile[fileID] {
		if productID != "" && pid != productID {
			continue
		}
		for _, iid := range m.byProduct[pid] {
			out = append(out, m.images[iid])
		}
	}
	return out
}

func (m *MemoryStore) GetImage(_ context.Context, id string) (*model.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return nil, model.ErrImageNotFound
	}
	copy := *img
	return &copy, nil
}

func (m *MemoryStore) UpdateImage(_ context.Context, id string, fn func(img *model.Image) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return model.ErrImageNotFound
	}
	next := *img
	if err := fn(&next); err != nil {
		return err
	}
	m.images[id] = &next
	return nil
}

func (m *MemoryStore) ClaimImages(_ context.Context, fileID string) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; !ok {
		return nil, model.ErrFileNotFound
	}
	var claimed []model.Image
	for _, img := range m.fileImages(fileID, "") {
		if img.Type == model.ImageUnclassified {
			img.Type = model.ImageInProgress
			claimed = append(claimed, *img)
		}
	}
	return claimed, nil
}

func (m *MemoryStore) RecordClassification(_ context.Context, imageID string, out model.ImageOutcome, settle pipeline.SettleFunc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return false, model.ErrImageNotFound
	}
	if img.Type != model.ImageInProgress {
		return false, nil
	}
	fileID := m.products[img.ProductID].FileID
	pending := 0
	for _, other := range m.fileImages(fileID, "") {
		if other.ID != imageID && other.Type.Pending() {
			pending++
		}
	}
	err := m.updateFile(fileID, func(f *model.File) error {
		return settle(f, pending)
	})
	if err != nil {
		return false, err
	}
	out.Apply(img)
	return true, nil
}

func (m *MemoryStore) SettleClassification(_ context.Context, fileID string, settle pipeline.SettleFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := 0
	for _, img := range m.fileImages(fileID, "") {
		if img.Type.Pending() {
			pending++
		}
	}
	return m.updateFile(fileID, func(f *model.File) error {
		return settle(f, pending)
	})
}

func (m *MemoryStore) CountImages(_ context.Context, fileID string) (map[model.ImageType]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.ImageType]int)
	for _, img := range m.fileImages(fileID, "") {
		counts[img.Type]++
	}
	return counts, nil
}
