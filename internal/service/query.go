package service

import (
	"net/url"
	"strconv"
	"strings"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/model"
)

// Paging defaults.
const (
	DefaultLimit = 25
	MaxLimit     = 100
	defaultSort  = "-createdAt"
)

// reservedParams are list query parameters that are not field filters.
var reservedParams = map[string]bool{"select": true, "sort": true, "page": true, "limit": true}

// ListParams is a parsed list query: projection, ordering, paging and
// equality filters.
type ListParams struct {
	Select []string
	Sort   []string
	Page   int64
	Limit  int64
	Filter map[string]any
}

// Page is one page of list results.
type Page struct {
	Data       []map[string]any
	Total      int64
	Pagination model.Pagination
}

// ParseListParams reads select, sort, page and limit from q. Every other
// parameter becomes an equality filter on the field of the same name.
func ParseListParams(q url.Values) (ListParams, error) {
	p := ListParams{
		Select: splitList(q.Get("select")),
		Sort:   splitList(q.Get("sort")),
		Page:   1,
		Limit:  DefaultLimit,
		Filter: map[string]any{},
	}
	if len(p.Sort) == 0 {
		p.Sort = []string{defaultSort}
	}

	var err error
	if v := q.Get("page"); v != "" {
		if p.Page, err = strconv.ParseInt(v, 10, 64); err != nil || p.Page < 1 {
			return ListParams{}, apperr.Validation("page must be a positive integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.ParseInt(v, 10, 64); err != nil || p.Limit < 1 {
			return ListParams{}, apperr.Validation("limit must be a positive integer")
		}
		p.Limit = min(p.Limit, MaxLimit)
	}

	for k, vs := range q {
		if reservedParams[k] || strings.HasPrefix(k, "$") || len(vs) == 0 {
			continue
		}
		p.Filter[k] = vs[len(vs)-1]
	}
	return p, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pagination links the neighbouring pages of the current one.
func pagination(page, limit, total int64) model.Pagination {
	var p model.Pagination
	if page*limit < total {
		p.Next = &model.PageRef{Page: page + 1, Limit: limit}
	}
	if (page-1)*limit > 0 {
		p.Prev = &model.PageRef{Page: page - 1, Limit: limit}
	}
	return p
}
