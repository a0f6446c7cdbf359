package models

// GenericProductRef is a substitutable catalog entry.
type GenericProductRef struct {
	ID      int64  `json:"id" bson:"_id"`
	Code    string `json:"code" bson:"code"`
	Name    string `json:"name" bson:"name"`
	Unit    string `json:"unit" bson:"unit"`
	GroupID int64  `json:"group_id" bson:"group_id"`
}

// OriginProduct is a concrete purchasable product as described by the catalog.
type OriginProduct struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	Unit           string             `json:"unit"`
	GroupID        int64              `json:"group_id"`
	GroupName      string             `json:"group_name"`
	DefaultGeneric *GenericProductRef `json:"default_generic,omitempty"`
}

// Group clusters origin products.
type Group struct {
	ID   int64  `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// GroupKey references a group either by id or, when the id is not known yet, by name.
type GroupKey struct {
	ID   int64
	Name string
}

// IsZero reports whether the key carries neither id nor name.
func (k GroupKey) IsZero() bool {
	return k.ID == 0 && k.Name == ""
}
