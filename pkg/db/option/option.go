package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "!="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

// QueryOption mutates a gorm query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// QuerySortBy describes an ORDER BY clause. When Allow is set, SortBy must be one of
// its keys, otherwise the option is ignored.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			if !validOperator(c.Operator) {
				continue
			}
			if c.Operator == IN {
				db = db.Where(fmt.Sprintf("%s IN ?", quote(c.Field)), c.Value)
				continue
			}
			db = db.Where(fmt.Sprintf("%s %s ?", quote(c.Field), c.Operator), c.Value)
		}
		return db
	}
}

// Between keeps rows with from <= field < to.
func Between(field string, from, to any) QueryOption {
	return ApplyOperator(
		Condition{Field: field, Operator: GTE, Value: from},
		Condition{Field: field, Operator: LT, Value: to},
	)
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		sortBy := s.SortBy
		if sortBy == "" {
			sortBy = "created_at"
		}
		if s.Allow != nil && !s.Allow[sortBy] {
			return db
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: desc})
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithOffset(offset int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	}
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE. sqlite ignores it.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func validOperator(op Operator) bool {
	switch op {
	case EQ, NEQ, GT, GTE, LT, LTE, IN:
		return true
	default:
		return false
	}
}

func quote(field string) string {
	return strings.ReplaceAll(field, "\"", "")
}
