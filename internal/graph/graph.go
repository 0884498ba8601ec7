// Package graph computes the set of wrapper functions that transitively reach
// the synchronization primitive, and the call sites inside each of them.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/phobologic/syncsplit/internal/model"
)

// ErrEmptyCallSites is returned when a wrapper has no qualifying call sites.
var ErrEmptyCallSites = errors.New("no qualifying call sites")

// Unit is a parsed translation unit.
type Unit struct {
	Path string
	Root *model.Node
}

// ClosureResult is the frozen outcome of the wrapper closure.
type ClosureResult struct {
	Primitive string

	// Registry maps every wrapper to its declaration node.
	Registry map[model.Key]*model.Node

	// Files maps each file to the wrapper names defined in it, in discovery
	// order.
	Files map[string][]string

	// PassSizes holds the registry size after each whole-project pass.
	PassSizes []int
}

// Has reports whether key names a wrapper.
func (r *ClosureResult) Has(key model.Key) bool {
	_, ok := r.Registry[key]
	return ok
}

// Lookup returns the declaration for key.
func (r *ClosureResult) Lookup(key model.Key) (*model.Node, error) {
	n, ok := r.Registry[key]
	if !ok {
		return nil, fmt.Errorf("%s: not in wrapper registry", key)
	}
	return n, nil
}

// Qualifies reports whether a call targets the primitive or a wrapper.
func (r *ClosureResult) Qualifies(call *model.Node) bool {
	if call.Kind != model.CallExpression || call.Name == "" {
		return false
	}
	if call.Name == r.Primitive {
		return true
	}
	return call.Ref != nil && r.Has(model.KeyOf(call.Ref))
}

// IsPrimitive reports whether a call targets the primitive itself.
func (r *ClosureResult) IsPrimitive(call *model.Node) bool {
	return call.Name == r.Primitive
}

// SortedFiles returns the files holding wrappers in lexical order.
func (r *ClosureResult) SortedFiles() []string {
	files := make([]string, 0, len(r.Files))
	for f := range r.Files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// scanResult is the outcome of a pure traversal of one subtree.
type scanResult struct {
	reaches bool
	found   []*model.Node
}

// Closure computes the maximal wrapper registry over all units. Whole-project
// passes repeat until one adds no entries; each pass is bounded by the number
// of function definitions so termination is guaranteed.
//
// onPass, if non-nil, is called after every pass with the pass number and the
// per-file wrapper counts.
func Closure(units []Unit, primitive string, onPass func(pass int, counts map[string]int)) *ClosureResult {
	r := &ClosureResult{
		Primitive: primitive,
		Registry:  make(map[model.Key]*model.Node),
		Files:     make(map[string][]string),
	}

	for pass := 1; ; pass++ {
		before := len(r.Registry)
		for _, u := range units {
			res := r.scan(u.Root)
			for _, decl := range res.found {
				r.add(decl)
			}
		}
		r.PassSizes = append(r.PassSizes, len(r.Registry))

		if onPass != nil {
			counts := make(map[string]int, len(r.Files))
			for f, names := range r.Files {
				counts[f] = len(names)
			}
			onPass(pass, counts)
		}

		if len(r.Registry) == before {
			return r
		}
	}
}

func (r *ClosureResult) add(decl *model.Node) {
	key := model.KeyOf(decl)
	if _, ok := r.Registry[key]; ok {
		return
	}
	r.Registry[key] = decl
	r.Files[key.File] = append(r.Files[key.File], key.Name)
}

// scan reads the registry but never writes it. Newly reached declarations
// are returned for the caller to merge.
func (r *ClosureResult) scan(n *model.Node) scanResult {
	var res scanResult
	for _, child := range n.Children {
		sub := r.scan(child)
		if sub.reaches {
			res.reaches = true
		}
		res.found = append(res.found, sub.found...)
	}

	switch n.Kind {
	case model.CallExpression:
		if r.Qualifies(n) {
			res.reaches = true
		}
	case model.FunctionDeclaration:
		if res.reaches && n.Name != "" && n.Name != r.Primitive {
			res.found = append(res.found, n)
		}
	}
	return res
}

// CallSites maps each wrapper to its qualifying calls in traversal order.
type CallSites map[model.Key][]*model.Node

// LocateCallSites collects, for every wrapper, each call at any depth inside
// its declaration whose target is the primitive or another wrapper.
func LocateCallSites(r *ClosureResult) CallSites {
	sites := make(CallSites, len(r.Registry))
	for key, decl := range r.Registry {
		sites[key] = collectCalls(r, decl)
	}
	return sites
}

// collectCalls gathers qualifying calls below n in post-order: calls nested
// inside a child (such as in its arguments) come before the child itself.
func collectCalls(r *ClosureResult, n *model.Node) []*model.Node {
	var calls []*model.Node
	for _, child := range n.Children {
		calls = append(calls, collectCalls(r, child)...)
		if r.Qualifies(child) {
			calls = append(calls, child)
		}
	}
	return calls
}

// LastCall returns the call with the highest line number; ties keep the first
// call encountered.
func LastCall(calls []*model.Node) (*model.Node, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyCallSites
	}
	last := calls[0]
	for _, c := range calls[1:] {
		if c.Line() > last.Line() {
			last = c
		}
	}
	return last, nil
}
