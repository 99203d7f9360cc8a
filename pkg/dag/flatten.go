package dag

import (
	"sort"

	"github.com/petrijr/grafo/pkg/api"
)

// PlanNode is one executable node of a flattened graph. Nodes that came
// from an embedded graph carry dot-qualified names ("prep.align"), which
// also key their run records in the store.
type PlanNode struct {
	Name     string
	Step     api.Step
	Literals api.Values
	// Upstream maps each connection-bound input field to the flattened
	// source it reads from.
	Upstream map[string]FieldRef
}

// ResolveFingerprint computes the node's cache fingerprint. Connected
// fields contribute the upstream node's fingerprint, not its value, so
// invalidation propagates transitively through the flattened graph.
func (pn *PlanNode) ResolveFingerprint(resolve FingerprintResolver) (string, error) {
	upstream := make(map[string]api.UpstreamRef, len(pn.Upstream))
	for field, ref := range pn.Upstream {
		fp, ok := resolve(ref.Instance)
		if !ok {
			return "", &api.UnresolvedError{Instance: pn.Name, Field: field, Source: ref.Instance}
		}
		upstream[field] = api.UpstreamRef{Source: ref.Instance, Field: ref.Field, Fingerprint: fp}
	}
	return api.ComputeFingerprint(pn.Step.Name, pn.Step.Version, pn.Literals, upstream)
}

// Plan is a graph flattened to a single level, verified acyclic, and ready
// to schedule. Order is a valid topological order with insertion-order
// tie-breaking; schedulers that run nodes concurrently may use any order
// consistent with DepsOf.
type Plan struct {
	Graph string
	Nodes map[string]*PlanNode
	Order []string

	deps       map[string][]string
	dependents map[string][]string
}

// DepsOf returns the names of the nodes that name directly depends on,
// sorted, one entry per upstream node.
func (p *Plan) DepsOf(name string) []string {
	out := make([]string, len(p.deps[name]))
	copy(out, p.deps[name])
	return out
}

// Dependents returns the names of the nodes that directly depend on name,
// sorted.
func (p *Plan) Dependents(name string) []string {
	out := make([]string, len(p.dependents[name]))
	copy(out, p.dependents[name])
	return out
}

// Len returns the number of executable nodes in the plan.
func (p *Plan) Len() int { return len(p.Nodes) }

// Flatten resolves nested graphs and export aliases into a single-level
// execution plan. Inner nodes get dot-qualified names; every edge is
// rewritten to connect the innermost endpoints directly.
//
// Flatten re-verifies what construction already enforced: it fails with
// DuplicateBinding when a parent-level connection and a connection added
// later inside an embedded graph claim the same inner field, and with
// CycleDetected if the flattened edges do not form a DAG.
func (g *Graph) Flatten() (*Plan, error) {
	plan := &Plan{
		Graph: g.name,
		Nodes: make(map[string]*PlanNode),
	}
	var added []string
	if err := g.flattenInto(plan, "", &added); err != nil {
		return nil, err
	}
	if err := plan.finish(added); err != nil {
		return nil, err
	}
	return plan, nil
}

func (g *Graph) flattenInto(plan *Plan, prefix string, added *[]string) error {
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			q := prefix + name
			plan.Nodes[q] = &PlanNode{
				Name:     q,
				Step:     n.step,
				Literals: n.Literals(),
				Upstream: make(map[string]FieldRef),
			}
			*added = append(*added, q)
			continue
		}
		if err := g.subs[name].flattenInto(plan, prefix+name+".", added); err != nil {
			return err
		}
	}
	for _, c := range g.conns {
		srcNode, srcField, err := g.resolveOutputEndpoint(prefix, c.From)
		if err != nil {
			return err
		}
		dstNode, dstField, err := g.resolveInputEndpoint(prefix, c.To)
		if err != nil {
			return err
		}
		pn := plan.Nodes[dstNode]
		if prev, exists := pn.Upstream[dstField]; exists {
			return &api.DuplicateBindingError{
				Instance:       dstNode,
				Field:          dstField,
				SourceInstance: prev.Instance,
				SourceField:    prev.Field,
			}
		}
		pn.Upstream[dstField] = FieldRef{Instance: srcNode, Field: srcField}
		// A connection established after a literal was written through an
		// alias takes precedence over the stale literal.
		delete(pn.Literals, dstField)
	}
	return nil
}

// resolveInputEndpoint descends through export aliases to the innermost
// node that owns the input field, returning its qualified name.
func (g *Graph) resolveInputEndpoint(prefix string, ref FieldRef) (string, string, error) {
	if _, ok := g.nodes[ref.Instance]; ok {
		return prefix + ref.Instance, ref.Field, nil
	}
	s, ok := g.subs[ref.Instance]
	if !ok {
		return "", "", &api.UnknownInstanceError{Graph: g.name, Instance: ref.Instance}
	}
	exp, ok := s.exportsIn[ref.Field]
	if !ok {
		return "", "", &api.UnknownFieldError{Instance: ref.Instance, Field: ref.Field}
	}
	return s.resolveInputEndpoint(prefix+ref.Instance+".", FieldRef{Instance: exp.Instance, Field: exp.Field})
}

// resolveOutputEndpoint is the output-side counterpart.
func (g *Graph) resolveOutputEndpoint(prefix string, ref FieldRef) (string, string, error) {
	if _, ok := g.nodes[ref.Instance]; ok {
		return prefix + ref.Instance, ref.Field, nil
	}
	s, ok := g.subs[ref.Instance]
	if !ok {
		return "", "", &api.UnknownInstanceError{Graph: g.name, Instance: ref.Instance}
	}
	exp, ok := s.exportsOut[ref.Field]
	if !ok {
		return "", "", &api.UnknownFieldError{Instance: ref.Instance, Field: ref.Field}
	}
	return s.resolveOutputEndpoint(prefix+ref.Instance+".", FieldRef{Instance: exp.Instance, Field: exp.Field})
}

// finish derives the dependency maps and the execution order. added holds
// the node names in definition order and breaks Kahn ties.
func (p *Plan) finish(added []string) error {
	depSet := make(map[string]map[string]bool, len(p.Nodes))
	for name, pn := range p.Nodes {
		for _, ref := range pn.Upstream {
			if depSet[name] == nil {
				depSet[name] = make(map[string]bool)
			}
			depSet[name][ref.Instance] = true
		}
	}

	p.deps = make(map[string][]string, len(depSet))
	p.dependents = make(map[string][]string)
	indeg := make(map[string]int, len(p.Nodes))
	for name, set := range depSet {
		deps := make([]string, 0, len(set))
		for dep := range set {
			deps = append(deps, dep)
			p.dependents[dep] = append(p.dependents[dep], name)
		}
		sort.Strings(deps)
		p.deps[name] = deps
		indeg[name] = len(deps)
	}
	for _, deps := range p.dependents {
		sort.Strings(deps)
	}

	visited := make(map[string]bool, len(added))
	p.Order = make([]string, 0, len(added))
	for len(p.Order) < len(added) {
		progressed := false
		for _, name := range added {
			if visited[name] || indeg[name] != 0 {
				continue
			}
			visited[name] = true
			p.Order = append(p.Order, name)
			for _, dep := range p.dependents[name] {
				indeg[dep]--
			}
			progressed = true
			break
		}
		if !progressed {
			return &api.CycleDetectedError{Graph: p.Graph}
		}
	}
	return nil
}
