package sqlxrepos

import (
	"strings"

	"github.com/volatiletech/strmangle"

	"github.com/trezcool/escolar/core"
)

// base is embedded by every repository.
type base struct {
	exec core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return b.exec
}

// where accumulates the conditions of a WHERE clause and their args.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// search matches val case-insensitively anywhere in any of cols.
func (w *where) search(val string, cols ...string) {
	if val == "" {
		return
	}
	pattern := "%" + strings.ToLower(val) + "%"
	conds := make([]string, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, "LOWER("+col+") LIKE ?")
		w.args = append(w.args, pattern)
	}
	w.clauses = append(w.clauses, "("+strings.Join(conds, " OR ")+")")
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// orderBy builds an ORDER BY clause out of the allowed orderings, falling back to def.
func orderBy(ordering []core.DBOrdering, prefix string, allowed []string, def string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if strmangle.SetInclude(ord.Field, allowed) {
			ord.Field = prefix + ord.Field
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return " ORDER BY " + def
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func paginate(q string, args []interface{}, page core.Pagination) (string, []interface{}) {
	page.Clean()
	return q + " LIMIT ? OFFSET ?", append(args, page.Limit, page.Skip)
}
