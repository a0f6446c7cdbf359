package models

// School receives meals and belongs to any number of routes.
type School struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RouteType classifies routes and restricts which groups they may carry.
type RouteType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Route is a logistics grouping of schools.
type Route struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RouteTypeID int64  `json:"route_type_id"`
}

// SchoolRoute is one school→route membership, with the route type denormalized.
type SchoolRoute struct {
	SchoolID      int64
	Route         Route
	RouteTypeName string
}
