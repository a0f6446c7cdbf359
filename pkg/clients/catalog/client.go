package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/provisioning/internal/config"
	"github.com/mamadbah2/provisioning/internal/domain/models"
)

// ErrorKind classifies upstream failures for logging.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRejected    ErrorKind = "rejected"
	KindServerError ErrorKind = "server_error"
	KindMalformed   ErrorKind = "malformed"
	KindTransport   ErrorKind = "transport"
)

// Error is returned for every failed catalog call.
type Error struct {
	Kind   ErrorKind
	Status int
	Path   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s %s (status %d): %v", e.Kind, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" when err is not a catalog error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// APIClient talks to the catalog service over HTTP.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a resty-backed catalog client.
func NewClient(cfg config.CatalogConfig) *APIClient {
	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))
	}

	return &APIClient{httpClient: restyClient}
}

type envelope[T any] struct {
	Data *T `json:"data"`
}

// GroupByName resolves a group display name to its catalog record.
func (c *APIClient) GroupByName(ctx context.Context, name string) (models.Group, error) {
	groups, err := get[[]models.Group](ctx, c, "/groups", map[string]string{"name": name})
	if err != nil {
		return models.Group{}, err
	}
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g.Name), strings.TrimSpace(name)) && g.ID != 0 {
			return g, nil
		}
	}
	return models.Group{}, &Error{Kind: KindRejected, Status: http.StatusNotFound, Path: "/groups", Err: fmt.Errorf("group %q not found", name)}
}

// GenericProductsByGroup lists the generic products of a group.
func (c *APIClient) GenericProductsByGroup(ctx context.Context, groupID int64) ([]models.GenericProductRef, error) {
	path := fmt.Sprintf("/groups/%d/generic-products", groupID)
	products, err := get[[]models.GenericProductRef](ctx, c, path, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.ID == 0 {
			return nil, &Error{Kind: KindMalformed, Path: path, Err: errors.New("generic product without id")}
		}
	}
	return products, nil
}

// OriginProduct fetches an origin product with its default generic substitute.
func (c *APIClient) OriginProduct(ctx context.Context, id int64) (models.OriginProduct, error) {
	path := "/origin-products/" + strconv.FormatInt(id, 10)
	product, err := get[models.OriginProduct](ctx, c, path, nil)
	if err != nil {
		return models.OriginProduct{}, err
	}
	if product.ID != id {
		return models.OriginProduct{}, &Error{Kind: KindMalformed, Path: path, Err: fmt.Errorf("unexpected product id %d", product.ID)}
	}
	return product, nil
}

// GenericProduct fetches a generic product by id.
func (c *APIClient) GenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error) {
	path := "/generic-products/" + strconv.FormatInt(id, 10)
	product, err := get[models.GenericProductRef](ctx, c, path, nil)
	if err != nil {
		return models.GenericProductRef{}, err
	}
	if product.ID != id {
		return models.GenericProductRef{}, &Error{Kind: KindMalformed, Path: path, Err: fmt.Errorf("unexpected product id %d", product.ID)}
	}
	return product, nil
}

// get performs the request and decodes the {"data": ...} envelope itself so a
// broken payload is told apart from a transport failure.
func get[T any](ctx context.Context, c *APIClient, path string, query map[string]string) (T, error) {
	var zero T

	req := c.httpClient.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return zero, &Error{Kind: classifyTransport(err), Path: path, Err: err}
	}

	switch status := resp.StatusCode(); {
	case status >= http.StatusInternalServerError:
		return zero, &Error{Kind: KindServerError, Status: status, Path: path, Err: errors.New(http.StatusText(status))}
	case status >= http.StatusBadRequest || status < http.StatusOK || status >= http.StatusMultipleChoices:
		return zero, &Error{Kind: KindRejected, Status: status, Path: path, Err: errors.New(http.StatusText(status))}
	}

	var env envelope[T]
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return zero, &Error{Kind: KindMalformed, Status: resp.StatusCode(), Path: path, Err: err}
	}
	if env.Data == nil {
		return zero, &Error{Kind: KindMalformed, Status: resp.StatusCode(), Path: path, Err: errors.New("missing data field")}
	}
	return *env.Data, nil
}

func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
