// Package listing implements the search, ordering and pagination shared by the
// list views. Callers describe which columns can be searched and sorted with
// Columns, and pass the user-supplied Query through unchanged: unknown sort keys
// fall back to the default order and page numbers are clamped.
package listing

import (
	"strings"

	"gorm.io/gorm"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const (
	DefaultPageSize = 5
	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = 1_000_000
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Query is a user-supplied list request.
type Query struct {
	Search   string    `json:"q,omitempty"`
	OrderBy  string    `json:"order_by,omitempty"`
	Dir      Direction `json:"dir,omitempty"`
	Page     int       `json:"page,omitempty"`
	PageSize int       `json:"page_size,omitempty"`
}

// Columns describes how a Query maps onto a table.
type Columns struct {
	// SearchColumns are matched case-insensitively with a substring match.
	SearchColumns []string
	// Sortable maps public order_by keys to column expressions.
	Sortable map[string]string
	// DefaultOrder is the order_by key used when none (or an unknown one) is given.
	DefaultOrder string
	// Key is the column appended to every ORDER BY so paging is stable.
	Key string
	// Select restricts the selected columns; needed when the base query joins.
	Select string
	// Preloads are associations loaded for the returned page only.
	Preloads []string
}

type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

func (p Page[T]) HasMore() bool {
	return p.Page < p.TotalPages()
}

func (p Page[T]) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Normalize fills defaults and drops anything the columns do not allow.
func (q Query) Normalize(cols Columns) Query {
	q.Search = strings.TrimSpace(q.Search)
	if _, ok := cols.Sortable[q.OrderBy]; !ok {
		q.OrderBy = cols.DefaultOrder
	}
	if q.Dir != Desc {
		q.Dir = Asc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// Search filters rows where any of the columns contains term, ignoring case.
// LIKE wildcards in term match literally.
func Search(columns []string, term string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if term == "" || len(columns) == 0 {
			return db
		}
		pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		clauses := make([]string, len(columns))
		args := make([]interface{}, len(columns))
		for i, column := range columns {
			clauses[i] = "LOWER(" + column + ") LIKE ? ESCAPE '\\'"
			args[i] = pattern
		}
		return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
}

// Order applies the requested ordering followed by the stable key.
func Order(cols Columns, q Query) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if column, ok := cols.Sortable[q.OrderBy]; ok {
			if q.Dir == Desc {
				db = db.Order(column + " DESC")
			} else {
				db = db.Order(column + " ASC")
			}
		}
		if cols.Key != "" {
			db = db.Order(cols.Key + " ASC")
		}
		return db
	}
}

func Paginate(q Query) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize)
	}
}

// Find counts and loads one page of T from base. base should already carry
// the model, joins, preloads and any fixed filters.
func Find[T any](base *gorm.DB, cols Columns, q Query) (Page[T], error) {
	q = q.Normalize(cols)
	page := Page[T]{Page: q.Page, PageSize: q.PageSize, Items: []T{}}

	filtered := base.Scopes(Search(cols.SearchColumns, q.Search)).Session(&gorm.Session{})

	if err := filtered.Count(&page.Total).Error; err != nil {
		return page, err
	}
	if page.Total == 0 {
		return page, nil
	}

	query := filtered.Scopes(Order(cols, q), Paginate(q))
	if cols.Select != "" {
		query = query.Select(cols.Select)
	}
	for _, association := range cols.Preloads {
		query = query.Preload(association)
	}
	if err := query.Find(&page.Items).Error; err != nil {
		return page, err
	}
	return page, nil
}
