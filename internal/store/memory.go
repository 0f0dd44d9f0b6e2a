package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"assetrecon/internal/assets"
)

// MemoryStore keeps every record in process memory. With a path it is the
// "json" driver: the whole inventory is rewritten to the file on every commit.
type MemoryStore struct {
	mu         sync.RWMutex
	assets     map[uuid.UUID]assets.Asset
	components map[uuid.UUID]assets.Component
	path       string
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:     make(map[uuid.UUID]assets.Asset),
		components: make(map[uuid.UUID]assets.Component),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewFileStore creates a memory store backed by a JSON file. A missing file
// is an empty inventory.
func NewFileStore(path string) (*MemoryStore, error) {
	s := NewMemoryStore()
	s.path = path
	snapshots, err := assets.LoadFromJSON(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.Load(snapshots)
	return s, nil
}

// Load replaces the store content with snapshots
func (s *MemoryStore) Load(snapshots []assets.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = make(map[uuid.UUID]assets.Asset, len(snapshots))
	s.components = make(map[uuid.UUID]assets.Component)
	for _, snap := range snapshots {
		s.assets[snap.Asset.ID] = snap.Asset.Clone()
		for _, c := range snap.Components {
			s.components[c.ID] = c.Clone()
		}
	}
}

// Snapshots returns every asset with its components, ordered by asset ID
func (s *MemoryStore) Snapshots() []assets.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotsOf(s.assets, s.components)
}

func snapshotsOf(as map[uuid.UUID]assets.Asset, cs map[uuid.UUID]assets.Component) []assets.Snapshot {
	byAsset := make(map[uuid.UUID][]assets.Component)
	for _, c := range cs {
		byAsset[c.AssetID] = append(byAsset[c.AssetID], c.Clone())
	}
	out := make([]assets.Snapshot, 0, len(as))
	for id, a := range as {
		comps := byAsset[id]
		sortComponents(comps)
		out = append(out, assets.Snapshot{Asset: a.Clone(), Components: comps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.ID.String() < out[j].Asset.ID.String() })
	return out
}

func (s *MemoryStore) findBy(match func(assets.Asset) bool) []assets.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []assets.Asset
	for _, a := range s.assets {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sortAssets(out)
	return out
}

// FindBySerial implements Store
func (s *MemoryStore) FindBySerial(_ context.Context, serial string) ([]assets.Asset, error) {
	return s.findBy(func(a assets.Asset) bool { return strings.EqualFold(a.SerialNumber(), serial) }), nil
}

// FindByBarcode implements Store
func (s *MemoryStore) FindByBarcode(_ context.Context, barcode string) ([]assets.Asset, error) {
	return s.findBy(func(a assets.Asset) bool { return strings.EqualFold(a.Barcode(), barcode) }), nil
}

// FindByManagementAddress implements Store
func (s *MemoryStore) FindByManagementAddress(_ context.Context, addr string) ([]assets.Asset, error) {
	return s.findBy(func(a assets.Asset) bool { return a.ManagementAddress() == addr }), nil
}

// FindByMAC implements Store
func (s *MemoryStore) FindByMAC(_ context.Context, mac string) ([]assets.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := map[uuid.UUID]bool{}
	for _, c := range s.components {
		if c.Kind == assets.KindEthernet && strings.EqualFold(c.SlotKey, mac) {
			owners[c.AssetID] = true
		}
	}
	var out []assets.Asset
	for id := range owners {
		if a, ok := s.assets[id]; ok {
			out = append(out, a.Clone())
		}
	}
	sortAssets(out)
	return out, nil
}

// ListAssets implements Store
func (s *MemoryStore) ListAssets(_ context.Context, offset, limit int) ([]assets.Asset, int, error) {
	all := s.findBy(func(assets.Asset) bool { return true })
	if offset >= len(all) {
		return []assets.Asset{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

// GetAsset implements Store
func (s *MemoryStore) GetAsset(_ context.Context, id uuid.UUID) (assets.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return assets.Asset{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

// ComponentsOf implements Store
func (s *MemoryStore) ComponentsOf(_ context.Context, assetID uuid.UUID) ([]assets.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []assets.Component
	for _, c := range s.components {
		if c.AssetID == assetID {
			out = append(out, c.Clone())
		}
	}
	sortComponents(out)
	return out, nil
}

// Commit implements Store. The next state is built aside and only swapped in
// once it is complete (and, for the json driver, written to disk).
func (s *MemoryStore) Commit(_ context.Context, cs *Changeset) error {
	if err := cs.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	nextAssets := make(map[uuid.UUID]assets.Asset, len(s.assets)+1)
	for k, v := range s.assets {
		nextAssets[k] = v
	}
	nextComponents := make(map[uuid.UUID]assets.Component, len(s.components)+len(cs.CreateComponents))
	for k, v := range s.components {
		nextComponents[k] = v
	}

	asset := cs.Asset.Clone()
	stored, exists := nextAssets[asset.ID]
	switch {
	case cs.Create && exists:
		return fmt.Errorf("asset %s already exists", asset.ID)
	case cs.Create:
		asset.Version = 1
	case !exists:
		return fmt.Errorf("%s: %w", asset.ID, ErrNotFound)
	case stored.Version != asset.Version:
		return fmt.Errorf("asset %s at version %d, read %d: %w", asset.ID, stored.Version, asset.Version, ErrStaleAsset)
	default:
		asset.Version = stored.Version + 1
	}
	asset.Touch(now)
	nextAssets[asset.ID] = asset

	for _, c := range cs.CreateComponents {
		if _, dup := nextComponents[c.ID]; dup {
			return fmt.Errorf("component %s already exists", c.ID)
		}
		c = c.Clone()
		c.Touch(now)
		nextComponents[c.ID] = c
	}
	for _, c := range cs.UpdateComponents {
		if _, ok := nextComponents[c.ID]; !ok {
			return fmt.Errorf("component %s does not exist", c.ID)
		}
		c = c.Clone()
		c.Touch(now)
		nextComponents[c.ID] = c
	}

	if s.path != "" {
		if err := assets.ExportToJSON(snapshotsOf(nextAssets, nextComponents), s.path); err != nil {
			return err
		}
	}
	s.assets = nextAssets
	s.components = nextComponents
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }

func sortAssets(list []assets.Asset) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID.String() < list[j].ID.String() })
}

func sortComponents(list []assets.Component) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		if list[i].SlotKey != list[j].SlotKey {
			return list[i].SlotKey < list[j].SlotKey
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
