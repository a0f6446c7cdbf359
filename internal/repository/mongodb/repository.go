package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

const (
	groupsCollection          = "groups"
	genericProductsCollection = "generic_products"
	originProductsCollection  = "origin_products"
)

// CatalogMirror serves catalog reads from the local MongoDB replica of the
// catalog service. It answers the same questions as the HTTP catalog client.
type CatalogMirror struct {
	client *mongo.Client
	db     *mongo.Database
}

type originProductDocument struct {
	ID               int64  `bson:"_id"`
	Name             string `bson:"name"`
	Unit             string `bson:"unit"`
	GroupID          int64  `bson:"group_id"`
	GroupName        string `bson:"group_name"`
	DefaultGenericID int64  `bson:"default_generic_id"`
}

// NewCatalogMirror connects to MongoDB and verifies the connection.
func NewCatalogMirror(ctx context.Context, uri string, dbName string) (*CatalogMirror, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &CatalogMirror{client: client, db: client.Database(dbName)}, nil
}

// GroupByName finds a group by its display name, ignoring case.
func (m *CatalogMirror) GroupByName(ctx context.Context, name string) (models.Group, error) {
	filter := bson.M{"name": primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(name)) + "$",
		Options: "i",
	}}

	var group models.Group
	if err := m.db.Collection(groupsCollection).FindOne(ctx, filter).Decode(&group); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, apperr.NotFound("group %q not found in catalog mirror", name)
		}
		return models.Group{}, fmt.Errorf("find group by name: %w", err)
	}
	return group, nil
}

// GenericProductsByGroup lists the generic products of a group ordered by name.
func (m *CatalogMirror) GenericProductsByGroup(ctx context.Context, groupID int64) ([]models.GenericProductRef, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(genericProductsCollection).Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find generic products: %w", err)
	}

	products := make([]models.GenericProductRef, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode generic products: %w", err)
	}
	return products, nil
}

// OriginProduct loads an origin product and resolves its default generic substitute.
func (m *CatalogMirror) OriginProduct(ctx context.Context, id int64) (models.OriginProduct, error) {
	var doc originProductDocument
	if err := m.db.Collection(originProductsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.OriginProduct{}, apperr.NotFound("origin product %d not found in catalog mirror", id)
		}
		return models.OriginProduct{}, fmt.Errorf("find origin product: %w", err)
	}

	product := models.OriginProduct{
		ID:        doc.ID,
		Name:      doc.Name,
		Unit:      doc.Unit,
		GroupID:   doc.GroupID,
		GroupName: doc.GroupName,
	}
	if doc.DefaultGenericID == 0 {
		return product, nil
	}

	generic, err := m.GenericProduct(ctx, doc.DefaultGenericID)
	switch {
	case err == nil:
		product.DefaultGeneric = &generic
	case !apperr.Is(err, apperr.KindNotFound):
		return models.OriginProduct{}, err
	}
	return product, nil
}

// GenericProduct loads a generic product by id.
func (m *CatalogMirror) GenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error) {
	var product models.GenericProductRef
	if err := m.db.Collection(genericProductsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.GenericProductRef{}, apperr.NotFound("generic product %d not found in catalog mirror", id)
		}
		return models.GenericProductRef{}, fmt.Errorf("find generic product: %w", err)
	}
	return product, nil
}

// Close closes the MongoDB connection.
func (m *CatalogMirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
