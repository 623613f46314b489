package scope

import (
	"fmt"
	"strings"
)

// Where is a parameterised SQL condition ready to append after WHERE.
// NextArg is the next free positional placeholder index.
type Where struct {
	SQL     string
	Args    []any
	NextArg int
}

// FilterBuilder constructs parameterised SQL filters for scopes.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type FilterBuilder struct{}

// SnapshotFilter matches snapshot rows for s. Nil fields match any value.
func (b FilterBuilder) SnapshotFilter(s Scope, firstArg int) Where {
	w := newWhere(firstArg)
	w.add("scope_type", string(s.Type))
	if s.Key != nil {
		w.add("scope_key", *s.Key)
	}
	b.addWindow(w, s)
	return w.build()
}

// FeedbackFilter selects the feedback rows a job for s should analyze.
// Network scope reads every row; region and store narrow by their column.
func (b FilterBuilder) FeedbackFilter(s Scope, firstArg int) Where {
	w := newWhere(firstArg)
	switch s.Type {
	case Region:
		if s.Key != nil {
			w.add("region_code", *s.Key)
		}
	case Store:
		if s.Key != nil {
			w.add("store_id", *s.Key)
		}
	}
	b.addWindow(w, s)
	return w.build()
}

func (b FilterBuilder) addWindow(w *whereBuilder, s Scope) {
	if s.ISOWeek != nil {
		w.add("iso_week", *s.ISOWeek)
	}
	if s.MonthKey != nil {
		w.add("month_key", *s.MonthKey)
	}
}

type whereBuilder struct {
	conditions []string
	args       []any
	argIdx     int
}

func newWhere(firstArg int) *whereBuilder {
	if firstArg < 1 {
		firstArg = 1
	}
	return &whereBuilder{argIdx: firstArg}
}

func (w *whereBuilder) add(column string, value any) {
	w.conditions = append(w.conditions, fmt.Sprintf("%s = $%d", column, w.argIdx))
	w.args = append(w.args, value)
	w.argIdx++
}

func (w *whereBuilder) build() Where {
	sql := "TRUE"
	if len(w.conditions) > 0 {
		sql = strings.Join(w.conditions, " AND ")
	}
	return Where{SQL: sql, Args: w.args, NextArg: w.argIdx}
}
