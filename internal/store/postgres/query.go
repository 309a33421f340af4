package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// filter accumulates WHERE clauses with positional arguments. Each clause
// uses a single "?" that becomes the next $n.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(f.args)), 1))
}

// timeRange applies opts.Since/Until to column.
func (f *filter) timeRange(column string, opts domain.ListOpts) {
	if opts.Since != nil {
		f.add(column+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		f.add(column+" <= ?", *opts.Until)
	}
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// page renders LIMIT/OFFSET for opts, appending their arguments.
func (f *filter) page(opts domain.ListOpts) string {
	var b strings.Builder
	if opts.Limit > 0 {
		f.args = append(f.args, opts.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(f.args)))
	}
	if opts.Offset > 0 {
		f.args = append(f.args, opts.Offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(f.args)))
	}
	return b.String()
}
