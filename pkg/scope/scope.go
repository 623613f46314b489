// Package scope describes the aggregation level a report applies to and
// builds the SQL filters used to match snapshots and gather feedback rows.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Type is the aggregation level of a report.
type Type string

const (
	Network Type = "network"
	Region  Type = "region"
	Store   Type = "store"
)

// Valid reports whether t is one of network, region or store.
func (t Type) Valid() bool {
	switch t {
	case Network, Region, Store:
		return true
	}
	return false
}

const maxKeyLen = 64
const maxWeekLen = 32

var reMonthKey = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid scope")

// Scope identifies what a job or snapshot covers. Nil pointers mean
// "unbounded" for time windows and "no key" for network scope.
type Scope struct {
	Type     Type
	Key      *string
	ISOWeek  *string
	MonthKey *string
}

// New builds a Scope from raw strings, mapping empty strings to nil.
func New(scopeType, key, isoWeek, monthKey string) Scope {
	return Scope{
		Type:     Type(strings.TrimSpace(scopeType)),
		Key:      optional(key),
		ISOWeek:  optional(isoWeek),
		MonthKey: optional(monthKey),
	}
}

// Validate checks the scope and normalizes it in place: network scope
// drops any key, region codes are upper-cased.
func (s *Scope) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: scope_type must be one of network, region, store; got %q", ErrInvalid, s.Type)
	}

	switch s.Type {
	case Network:
		s.Key = nil
	case Region, Store:
		if s.Key == nil {
			return fmt.Errorf("%w: scope_key is required for scope_type %s", ErrInvalid, s.Type)
		}
		if len(*s.Key) > maxKeyLen {
			return fmt.Errorf("%w: scope_key exceeds %d characters", ErrInvalid, maxKeyLen)
		}
		if s.Type == Region {
			upper := strings.ToUpper(*s.Key)
			s.Key = &upper
		}
	}

	if s.ISOWeek != nil && len(*s.ISOWeek) > maxWeekLen {
		return fmt.Errorf("%w: iso_week exceeds %d characters", ErrInvalid, maxWeekLen)
	}
	if s.MonthKey != nil && !reMonthKey.MatchString(*s.MonthKey) {
		return fmt.Errorf("%w: month_key must be YYYY-MM, got %q", ErrInvalid, *s.MonthKey)
	}
	return nil
}

// KeyOrEmpty returns the scope key or "" for network scope.
func (s Scope) KeyOrEmpty() string { return deref(s.Key) }

// String renders the scope for logs, e.g. "region:AKL@FY26-W11".
func (s Scope) String() string {
	var b strings.Builder
	b.WriteString(string(s.Type))
	if s.Key != nil {
		b.WriteString(":" + *s.Key)
	}
	if s.ISOWeek != nil {
		b.WriteString("@" + *s.ISOWeek)
	}
	if s.MonthKey != nil {
		b.WriteString("#" + *s.MonthKey)
	}
	return b.String()
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
