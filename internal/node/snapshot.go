package node

// NodeSnapshot is the serializable description of one node, references by
// key. Diagnostic only, not a durable format.
type NodeSnapshot struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Subject  string `json:"subject,omitempty"`
	Model    string `json:"model,omitempty"`
	Parent   string `json:"parent,omitempty"`
	Source   string `json:"source,omitempty"`
	Target   string `json:"target,omitempty"`
	IREntity string `json:"ir_entity,omitempty"`
	Class    string `json:"class,omitempty"`
}

// Snapshot renders the whole tree in insertion order for the debug dump.
func (t *Tree) Snapshot() []NodeSnapshot {
	out := make([]NodeSnapshot, 0, len(t.order))
	for _, n := range t.order {
		s := NodeSnapshot{Key: n.Key(), Kind: n.Kind().String()}
		switch v := n.(type) {
		case *SubjectNode:
		case *LoaderNode:
			s.Subject = v.Subject.Key()
		case *ModelNode:
			s.Subject = v.Subject.Key()
			s.Class = v.PartitionClass
		case *ElementNode:
			if v.Model != nil {
				s.Model = v.Model.Key()
			}
			if v.Parent != nil {
				s.Parent = v.Parent.Key()
			}
			s.IREntity = v.DMO.IREntity
			s.Class = v.DMO.Class.Name
		case *RelationshipNode:
			s.Source = v.Source.Key()
			s.Target = v.Target.Key()
			s.IREntity = v.DMO.IREntity
			s.Class = v.DMO.Class.Name
		case *RelatedElementNode:
			s.Source = v.Source.Key()
			s.Target = v.Target.Key()
			s.IREntity = v.DMO.IREntity
			s.Class = v.DMO.Class.Name
		}
		out = append(out, s)
	}
	return out
}
