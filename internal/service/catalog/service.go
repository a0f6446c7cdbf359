// Package catalog resolves substitute candidates for origin products.
//
// Lookups go cache → external catalog → local mirror. Upstream failures of any
// kind are logged and answered from the mirror; they never reach callers.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/pkg/apperr"
	catalogclient "github.com/mamadbah2/provisioning/pkg/clients/catalog"
)

// Source answers catalog questions. The HTTP client and the Mongo mirror both implement it.
type Source interface {
	GroupByName(ctx context.Context, name string) (models.Group, error)
	GenericProductsByGroup(ctx context.Context, groupID int64) ([]models.GenericProductRef, error)
	OriginProduct(ctx context.Context, id int64) (models.OriginProduct, error)
	GenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error)
}

// Service is the catalog enrichment service.
type Service struct {
	upstream Source
	mirror   Source
	cache    Cache
	flight   singleflight.Group
	logger   *zap.Logger
}

// NewService wires the enrichment service. upstream may be nil, in which case
// every lookup goes to the mirror.
func NewService(upstream, mirror Source, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{upstream: upstream, mirror: mirror, cache: cache, logger: logger}
}

func groupNameKey(name string) string {
	return "group-name:" + strings.ToLower(strings.TrimSpace(name))
}

func groupKey(id int64) string { return "group:" + strconv.FormatInt(id, 10) }

func originKey(id int64) string { return "origin:" + strconv.FormatInt(id, 10) }

func genericKey(id int64) string { return "generic:" + strconv.FormatInt(id, 10) }

// ResolveGroupID normalizes a group key to a group id, caching name lookups separately.
func (s *Service) ResolveGroupID(ctx context.Context, key models.GroupKey) (int64, bool) {
	if key.ID != 0 {
		return key.ID, true
	}
	if strings.TrimSpace(key.Name) == "" {
		return 0, false
	}

	group, err := lookup(ctx, s, groupNameKey(key.Name), "group_by_name",
		func(ctx context.Context, src Source) (models.Group, error) {
			return src.GroupByName(ctx, key.Name)
		},
		func(g models.Group) bool { return g.ID != 0 },
	)
	if err != nil {
		s.logger.Warn("group name unresolved", zap.String("group", key.Name), zap.Error(err))
		return 0, false
	}
	return group.ID, group.ID != 0
}

// ResolveGroupCandidates returns the generic products of a group. Failures yield an empty list.
func (s *Service) ResolveGroupCandidates(ctx context.Context, key models.GroupKey) []models.GenericProductRef {
	groupID, ok := s.ResolveGroupID(ctx, key)
	if !ok {
		return []models.GenericProductRef{}
	}

	products, err := lookup(ctx, s, groupKey(groupID), "generic_products_by_group",
		func(ctx context.Context, src Source) ([]models.GenericProductRef, error) {
			return src.GenericProductsByGroup(ctx, groupID)
		},
		func(p []models.GenericProductRef) bool { return len(p) > 0 },
	)
	if err != nil {
		s.logger.Warn("group candidates unavailable", zap.Int64("group_id", groupID), zap.Error(err))
		return []models.GenericProductRef{}
	}
	if products == nil {
		return []models.GenericProductRef{}
	}
	return products
}

// OriginProduct returns the catalog view of an origin product.
func (s *Service) OriginProduct(ctx context.Context, originProductID int64) (models.OriginProduct, error) {
	return lookup(ctx, s, originKey(originProductID), "origin_product",
		func(ctx context.Context, src Source) (models.OriginProduct, error) {
			return src.OriginProduct(ctx, originProductID)
		},
		func(p models.OriginProduct) bool { return p.ID != 0 },
	)
}

// ResolveDefaultSubstitute returns the default generic product of an origin product, or nil.
func (s *Service) ResolveDefaultSubstitute(ctx context.Context, originProductID int64) *models.GenericProductRef {
	product, err := s.OriginProduct(ctx, originProductID)
	if err != nil {
		s.logger.Warn("default substitute unavailable", zap.Int64("origin_product_id", originProductID), zap.Error(err))
		return nil
	}
	return product.DefaultGeneric
}

// ResolveGenericProduct loads a generic product. Unlike the enrichment lookups it
// reports failures, because creating a proposal cannot proceed without the product.
func (s *Service) ResolveGenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error) {
	product, err := lookup(ctx, s, genericKey(id), "generic_product",
		func(ctx context.Context, src Source) (models.GenericProductRef, error) {
			return src.GenericProduct(ctx, id)
		},
		func(p models.GenericProductRef) bool { return p.ID != 0 },
	)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return models.GenericProductRef{}, apperr.NotFound("generic product %d not found", id)
		}
		return models.GenericProductRef{}, apperr.Wrap(apperr.KindInternal, "catalog lookup failed", err)
	}
	return product, nil
}

// SearchCandidates lists generic products for a group (id or name) or, when no
// group is given, for the origin product's group, filtered by a case-insensitive
// substring of name or code.
func (s *Service) SearchCandidates(ctx context.Context, originProductID int64, group, search string) []models.GenericProductRef {
	key := parseGroupKey(group)
	if key.IsZero() && originProductID != 0 {
		product, err := s.OriginProduct(ctx, originProductID)
		if err != nil {
			s.logger.Warn("origin product unavailable for search", zap.Int64("origin_product_id", originProductID), zap.Error(err))
			return []models.GenericProductRef{}
		}
		key = models.GroupKey{ID: product.GroupID, Name: product.GroupName}
	}
	if key.IsZero() {
		return []models.GenericProductRef{}
	}

	candidates := s.ResolveGroupCandidates(ctx, key)
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return candidates
	}

	out := make([]models.GenericProductRef, 0, len(candidates))
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), needle) || strings.Contains(strings.ToLower(c.Code), needle) {
			out = append(out, c)
		}
	}
	return out
}

// Flush drops every cached catalog entry.
func (s *Service) Flush(ctx context.Context) error {
	if err := s.cache.Flush(ctx); err != nil {
		return fmt.Errorf("flush catalog cache: %w", err)
	}
	s.logger.Info("catalog cache flushed")
	return nil
}

func parseGroupKey(raw string) models.GroupKey {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.GroupKey{}
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return models.GroupKey{ID: id}
	}
	return models.GroupKey{Name: raw}
}

// lookup serves key from the cache, otherwise from upstream with mirror fallback.
// Only non-empty upstream answers are written back to the cache.
func lookup[T any](
	ctx context.Context,
	s *Service,
	key, op string,
	call func(context.Context, Source) (T, error),
	cacheable func(T) bool,
) (T, error) {
	var zero T

	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		s.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		// Shared by every waiter on key, so one caller's cancellation must not end it.
		ctx := context.WithoutCancel(ctx)
		if s.upstream != nil {
			value, err := call(ctx, s.upstream)
			if err == nil {
				if cacheable(value) {
					if raw, err := json.Marshal(value); err == nil {
						s.cache.Set(ctx, key, raw)
					}
				}
				return value, nil
			}
			s.logUpstreamFailure(op, key, err)
		}

		value, err := call(ctx, s.mirror)
		if err != nil {
			return zero, fmt.Errorf("catalog mirror %s: %w", op, err)
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (s *Service) logUpstreamFailure(op, key string, err error) {
	kind := string(catalogclient.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	s.logger.Warn("catalog upstream failed, falling back to local mirror",
		zap.String("kind", kind),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(apperr.Upstream(err)))
}
