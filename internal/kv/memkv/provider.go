package memkv

import (
	"sync"

	"quereus/internal/kv"
)

// Provider is the in-memory kv.Provider: it maps logical store identities
// ((schema,table), (schema,table,index), stats, catalog) to Stores and
// guarantees identity — repeated requests for the same logical store
// return the same *Store (spec §4.3).
type Provider struct {
	mu      sync.Mutex
	data    map[string]*Store
	indexes map[string]*Store
	stats   map[string]*Store
	catalog *Store
}

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{
		data:    map[string]*Store{},
		indexes: map[string]*Store{},
		stats:   map[string]*Store{},
	}
}

func tableKey(schema, table string) string { return schema + "." + table }
func indexKey(schema, table, index string) string { return schema + "." + table + "." + index }

func (p *Provider) DataStore(schema, table string) (kv.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := tableKey(schema, table)
	s, ok := p.data[k]
	if !ok {
		s = New()
		p.data[k] = s
	}
	return s, nil
}

func (p *Provider) IndexStore(schema, table, index string) (kv.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := indexKey(schema, table, index)
	s, ok := p.indexes[k]
	if !ok {
		s = New()
		p.indexes[k] = s
	}
	return s, nil
}

func (p *Provider) StatsStore(schema, table string) (kv.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := tableKey(schema, table)
	s, ok := p.stats[k]
	if !ok {
		s = New()
		p.stats[k] = s
	}
	return s, nil
}

func (p *Provider) CatalogStore() (kv.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.catalog == nil {
		p.catalog = New()
	}
	return p.catalog, nil
}

func (p *Provider) CloseStore(schema, table string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := tableKey(schema, table)
	if s, ok := p.data[k]; ok {
		_ = s.Close()
		delete(p.data, k)
	}
	if s, ok := p.stats[k]; ok {
		_ = s.Close()
		delete(p.stats, k)
	}
	for ik, s := range p.indexes {
		if len(ik) > len(k) && ik[:len(k)+1] == k+"." {
			_ = s.Close()
			delete(p.indexes, ik)
		}
	}
	return nil
}

func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.data {
		_ = s.Close()
	}
	for _, s := range p.indexes {
		_ = s.Close()
	}
	for _, s := range p.stats {
		_ = s.Close()
	}
	if p.catalog != nil {
		_ = p.catalog.Close()
	}
	p.data = map[string]*Store{}
	p.indexes = map[string]*Store{}
	p.stats = map[string]*Store{}
	return nil
}

func (p *Provider) DeleteTableStores(schema, table string) error {
	return p.CloseStore(schema, table)
}
