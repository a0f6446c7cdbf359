package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// Catalog is an in-memory catalog source. Err, when set, fails every call.
type Catalog struct {
	mu       sync.RWMutex
	groups   map[int64]models.Group
	generics map[int64]models.GenericProductRef
	origins  map[int64]models.OriginProduct

	Err   error
	calls atomic.Int64
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		groups:   make(map[int64]models.Group),
		generics: make(map[int64]models.GenericProductRef),
		origins:  make(map[int64]models.OriginProduct),
	}
}

// Calls reports how many lookups were served or attempted.
func (c *Catalog) Calls() int64 {
	return c.calls.Load()
}

func (c *Catalog) PutGroup(g models.Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g.ID] = g
}

func (c *Catalog) PutGeneric(p models.GenericProductRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generics[p.ID] = p
}

func (c *Catalog) PutOrigin(p models.OriginProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origins[p.ID] = p
}

func (c *Catalog) GroupByName(_ context.Context, name string) (models.Group, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return models.Group{}, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.groups {
		if strings.EqualFold(g.Name, strings.TrimSpace(name)) {
			return g, nil
		}
	}
	return models.Group{}, apperr.NotFound("group %q not found", name)
}

func (c *Catalog) GenericProductsByGroup(_ context.Context, groupID int64) ([]models.GenericProductRef, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.GenericProductRef, 0)
	for _, p := range c.generics {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Catalog) OriginProduct(_ context.Context, id int64) (models.OriginProduct, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return models.OriginProduct{}, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.origins[id]
	if !ok {
		return models.OriginProduct{}, apperr.NotFound("origin product %d not found", id)
	}
	return p, nil
}

func (c *Catalog) GenericProduct(_ context.Context, id int64) (models.GenericProductRef, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return models.GenericProductRef{}, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.generics[id]
	if !ok {
		return models.GenericProductRef{}, apperr.NotFound("generic product %d not found", id)
	}
	return p, nil
}
