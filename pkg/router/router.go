// Package router partitions path-addressed patch batches by target category.
// The first path segment (or a declared alias such as "health_metrics")
// selects the category; unprefixed paths route to the profile document by
// convention, matching the conversation layer's output.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zestify/healthmem/pkg/merge"
	"github.com/zestify/healthmem/pkg/template"
)

// ErrUnroutablePath marks an operation whose path prefix no category claims.
var ErrUnroutablePath = errors.New("unroutable path")

// RoutedOp is one operation assigned to a category. Index is the operation's
// position in the original batch; Op.Path has the category prefix stripped.
type RoutedOp struct {
	Index int
	Op    merge.PatchOperation
}

// Rejection reports an operation that could not be routed. Rejections are
// individual: they never block routing of the rest of the batch.
type Rejection struct {
	Index int
	Op    merge.PatchOperation
	Err   error
}

// Routed is the result of partitioning a batch.
type Routed struct {
	// ByCategory preserves the original relative order of operations within
	// each category. Order across categories is not meaningful: the
	// categories address disjoint documents.
	ByCategory map[template.Category][]RoutedOp
	Rejections []Rejection
}

// Route partitions ops by target category.
func Route(reg *template.Registry, ops []merge.PatchOperation) Routed {
	out := Routed{ByCategory: make(map[template.Category][]RoutedOp)}

	for i, op := range ops {
		category, rewritten, err := routeOne(reg, op)
		if err != nil {
			out.Rejections = append(out.Rejections, Rejection{Index: i, Op: op, Err: err})
			continue
		}
		out.ByCategory[category] = append(out.ByCategory[category], RoutedOp{Index: i, Op: rewritten})
	}

	return out
}

func routeOne(reg *template.Registry, op merge.PatchOperation) (template.Category, merge.PatchOperation, error) {
	segs := merge.ParsePath(op.Path)
	if len(segs) == 0 {
		return "", op, fmt.Errorf("%w: empty path", ErrUnroutablePath)
	}

	if category, ok := reg.CategoryForPrefix(segs[0]); ok {
		if len(segs) == 1 {
			return "", op, fmt.Errorf("%w: %q addresses a whole category", ErrUnroutablePath, op.Path)
		}
		op.Path = "/" + strings.Join(segs[1:], "/")
		return category, op, nil
	}

	// Unprefixed paths belong to the profile document when their first
	// segment is a declared profile field.
	profile, err := reg.Resolve(template.CategoryProfile)
	if err != nil {
		return "", op, err
	}
	if _, declared := profile.Fields[segs[0]]; !declared {
		return "", op, fmt.Errorf("%w: no category claims prefix %q", ErrUnroutablePath, segs[0])
	}
	op.Path = "/" + strings.Join(segs, "/")
	return template.CategoryProfile, op, nil
}
