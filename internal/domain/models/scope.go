package models

import "strings"

// Filters are the optional narrowing parameters accepted by the review screens.
type Filters struct {
	Group           string
	SupplyWeek      string
	ConsumptionWeek string
	RouteTypeID     int64
	RouteID         int64
}

// Scope is the resolved form of Filters: a predicate over schools and needs.
//
// SchoolIDs is only meaningful when SchoolsRestricted is set; an empty restricted
// list matches nothing. Empty short-circuits everything.
type Scope struct {
	Group             string
	SupplyWeek        string
	ConsumptionWeek   string
	SchoolIDs         []int64
	SchoolsRestricted bool
	Empty             bool
}

// Matches reports whether a row with the given attributes falls inside the scope.
func (s Scope) Matches(schoolID int64, group, supplyWeek, consumptionWeek string) bool {
	if s.Empty {
		return false
	}
	if s.Group != "" && !strings.EqualFold(strings.TrimSpace(group), s.Group) {
		return false
	}
	if s.SupplyWeek != "" && supplyWeek != s.SupplyWeek {
		return false
	}
	if s.ConsumptionWeek != "" && consumptionWeek != s.ConsumptionWeek {
		return false
	}
	if !s.SchoolsRestricted {
		return true
	}
	for _, id := range s.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// MatchesNeed applies Matches to a need.
func (s Scope) MatchesNeed(n Need) bool {
	return s.Matches(n.SchoolID, n.Group, n.SupplyWeek, n.ConsumptionWeek)
}

// MatchesProposal applies Matches to a proposal.
func (s Scope) MatchesProposal(p SubstitutionProposal) bool {
	return s.Matches(p.SchoolID, p.Group, p.SupplyWeek, p.ConsumptionWeek)
}
