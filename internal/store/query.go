package store

import (
	"math"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

// ListParams are the list options a client can send: free-text search,
// exact-match filters, ordering and a limit/offset window.
type ListParams struct {
	Search   string
	Filters  map[string]string
	Ordering []string
	Limit    int
	Offset   int
}

type fieldKind int

const (
	textField fieldKind = iota
	intField
)

type filterField struct {
	column string
	kind   fieldKind
}

// listSpec describes which fields of a resource are searchable, filterable
// and orderable, keyed by their wire names.
type listSpec struct {
	search   []string
	filters  map[string]filterField
	ordering map[string]string
	defaults []string
	pk       string
}

// FilterNames lists the query parameters that act as exact-match filters.
func (ls listSpec) FilterNames() []string {
	names := make([]string, 0, len(ls.filters))
	for name := range ls.filters {
		names = append(names, name)
	}
	return names
}

var bookList = listSpec{
	search: []string{"b.title", "a.name"},
	filters: map[string]filterField{
		"title":            {column: "b.title", kind: textField},
		"author":           {column: "b.author_id", kind: intField},
		"publication_year": {column: "b.publication_year", kind: intField},
	},
	ordering: map[string]string{
		"id":               "b.id",
		"title":            "b.title",
		"publication_year": "b.publication_year",
		"published_date":   "b.published_date",
	},
	defaults: []string{"title"},
	pk:       "b.id",
}

var authorList = listSpec{
	search: []string{"name"},
	filters: map[string]filterField{
		"name": {column: "name", kind: textField},
	},
	ordering: map[string]string{
		"id":   "id",
		"name": "name",
	},
	defaults: []string{"name"},
	pk:       "id",
}

var postList = listSpec{
	search: []string{"title", "content"},
	filters: map[string]filterField{
		"author": {column: "author_id", kind: intField},
		"title":  {column: "title", kind: textField},
	},
	ordering: map[string]string{
		"id":             "id",
		"title":          "title",
		"published_date": "published_date",
	},
	defaults: []string{"published_date"},
	pk:       "id",
}

func BookFilters() []string   { return bookList.FilterNames() }
func AuthorFilters() []string { return authorList.FilterNames() }
func PostFilters() []string   { return postList.FilterNames() }

// apply adds the WHERE, ORDER BY and LIMIT/OFFSET clauses for p to b.
// contains builds the case-insensitive match used for search.
func (ls listSpec) apply(b sq.SelectBuilder, p ListParams, contains func(col, term string) sq.Sqlizer) (sq.SelectBuilder, error) {
	errs := model.ValidationErrors{}
	for name, raw := range p.Filters {
		f, ok := ls.filters[name]
		if !ok || raw == "" {
			continue
		}
		switch f.kind {
		case intField:
			n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				errs.Add(name, "Enter a number.")
				continue
			}
			b = b.Where(sq.Eq{f.column: n})
		default:
			b = b.Where(sq.Eq{f.column: raw})
		}
	}
	if err := errs.Err(); err != nil {
		return b, err
	}

	if cond := ls.searchCond(p.Search, contains); cond != nil {
		b = b.Where(cond)
	}

	b = b.OrderBy(ls.orderBy(p.Ordering)...)

	if p.Limit > 0 {
		b = b.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		if p.Limit <= 0 {
			// SQLite rejects OFFSET without LIMIT.
			b = b.Limit(math.MaxInt64)
		}
		b = b.Offset(uint64(p.Offset))
	}
	return b, nil
}

// searchCond matches every whitespace or comma separated term against any of
// the search columns.
func (ls listSpec) searchCond(search string, contains func(col, term string) sq.Sqlizer) sq.Sqlizer {
	terms := strings.FieldsFunc(search, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(terms) == 0 || len(ls.search) == 0 {
		return nil
	}
	and := sq.And{}
	for _, term := range terms {
		or := sq.Or{}
		for _, col := range ls.search {
			or = append(or, contains(col, term))
		}
		and = append(and, or)
	}
	return and
}

// orderBy maps ordering terms like "-published_date" to SQL. Unknown fields
// are ignored; the default ordering applies when nothing valid remains. The
// primary key is appended as a tie breaker so pages are stable.
func (ls listSpec) orderBy(terms []string) []string {
	var clauses []string
	seen := map[string]bool{}
	add := func(terms []string) {
		for _, term := range terms {
			term = strings.TrimSpace(term)
			dir := "ASC"
			if strings.HasPrefix(term, "-") {
				dir = "DESC"
				term = term[1:]
			}
			col, ok := ls.ordering[term]
			if !ok || seen[col] {
				continue
			}
			seen[col] = true
			clauses = append(clauses, col+" "+dir)
		}
	}
	add(terms)
	if len(clauses) == 0 {
		add(ls.defaults)
	}
	if !seen[ls.pk] {
		clauses = append(clauses, ls.pk+" ASC")
	}
	return clauses
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
