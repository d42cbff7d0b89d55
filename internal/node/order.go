package node

// ExecutionOrder returns the subject's nodes in the fixed synchronization
// order:
//
//  1. the loader-config node (its change state gates the whole run)
//  2. definition-like models and their elements, so category and definition
//     records exist before anything references them
//  3. the remaining models and their elements, depth-first, children after
//     parents
//  4. relationship nodes
//  5. related-element nodes, which resolve references by IR key and so need
//     every record already synchronized
//
// The order is not configurable.
func (t *Tree) ExecutionOrder(subject *SubjectNode) []Node {
	var out []Node

	if l := t.LoaderFor(subject); l != nil {
		out = append(out, l)
	}

	for _, definitionPass := range []bool{true, false} {
		for _, n := range t.order {
			m, ok := n.(*ModelNode)
			if !ok || m.Subject != subject || m.IsDefinition != definitionPass {
				continue
			}
			out = append(out, m)
			out = append(out, t.elementsUnder(m)...)
		}
	}

	for _, n := range t.order {
		if r, ok := n.(*RelationshipNode); ok && t.inSubject(r.Source, subject) {
			out = append(out, r)
		}
	}
	for _, n := range t.order {
		if r, ok := n.(*RelatedElementNode); ok && t.inSubject(r.Source, subject) {
			out = append(out, r)
		}
	}

	return out
}

// elementsUnder returns the model's element nodes depth-first, children after
// parents, preserving insertion order among siblings.
func (t *Tree) elementsUnder(m *ModelNode) []Node {
	var out []Node
	var visit func(parent *ElementNode)
	visit = func(parent *ElementNode) {
		for _, n := range t.order {
			e, ok := n.(*ElementNode)
			if !ok || e.Parent != parent {
				continue
			}
			if parent == nil && e.Model != m {
				continue
			}
			out = append(out, e)
			visit(e)
		}
	}
	visit(nil)
	return out
}

func (t *Tree) inSubject(e *ElementNode, subject *SubjectNode) bool {
	m := e.owningModel()
	return m != nil && m.Subject == subject
}
