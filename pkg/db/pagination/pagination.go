package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"sponsorportal/pkg/db/option"
)

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor" json:"cursor"`
	Limit  int    `form:"limit" json:"limit" binding:"omitempty,gte=1,lte=250"`
}

type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func (p Pagination) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Options returns the query options for one newest-first page. One extra row is
// requested so BuildCursorPageInfo can tell whether another page exists.
func (p Pagination) Options() ([]option.QueryOption, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(p.PageSize() + 1),
	}

	if p.Cursor == "" {
		return opts, nil
	}

	cursor, err := DecodeCursor(p.Cursor)
	if err != nil {
		return nil, err
	}

	return append(opts, option.ApplyOperator(option.Condition{
		Field:    "created_at",
		Operator: option.LT,
		Value:    cursor.CreatedAt,
	})), nil
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo trims data to limit and returns the cursor of the last row kept.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	pageInfo := &PageInfo{HasMore: hasMore}
	if hasMore {
		next, err := EncodeCursor(extractCursor(data[len(data)-1]))
		if err == nil {
			pageInfo.NextCursor = next
		}
	}

	return data, pageInfo
}
