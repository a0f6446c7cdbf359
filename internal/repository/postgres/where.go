package postgres

import (
	"fmt"
	"strings"

	"github.com/mamadbah2/provisioning/internal/domain/models"
)

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// add appends a clause; format receives the placeholder index of arg.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(w.clauses, " AND ")
}

// scope pushes models.Scope.Matches down to SQL. It returns false when the
// scope cannot match any row, in which case the query should not run.
func (w *where) scope(s models.Scope) bool {
	if s.Empty {
		return false
	}
	if s.Group != "" {
		w.add("lower(btrim(group_name)) = lower($%d)", s.Group)
	}
	if s.SupplyWeek != "" {
		w.add("supply_week = $%d", s.SupplyWeek)
	}
	if s.ConsumptionWeek != "" {
		w.add("consumption_week = $%d", s.ConsumptionWeek)
	}
	if s.SchoolsRestricted {
		if len(s.SchoolIDs) == 0 {
			return false
		}
		w.add("school_id = ANY($%d)", s.SchoolIDs)
	}
	return true
}
