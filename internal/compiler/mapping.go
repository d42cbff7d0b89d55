// Package compiler parses CUE mapping files into mapping definitions and
// node trees. The declarative front end covers everything except the Go-level
// hooks (instance predicates and property transforms), which integrators
// attach in code.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
)

// Mapping is a compiled mapping file: one subject, one connection, and the
// declarative node layout. Slices preserve declaration order, which becomes
// tree insertion order.
type Mapping struct {
	Subject            string
	Connection         loader.Connection
	PrimaryKeys        loader.PKConfig
	RelationshipSheets []string

	Models          []ModelDef
	Elements        []ElementDef
	Relationships   []RelationshipDef
	RelatedElements []RelatedElementDef
}

// ModelDef declares one group node.
type ModelDef struct {
	Key            string
	PartitionClass string
	ModelClass     string
	IsDefinition   bool
}

// ElementDef declares one element node. Exactly one of Model or Parent names
// the owner; the tree builder enforces this.
type ElementDef struct {
	Key      string
	Model    string
	Parent   string
	IREntity string
	Class    dmo.ClassRef
}

// RelationshipDef declares one link node between two element nodes.
type RelationshipDef struct {
	Key      string
	Source   string
	Target   string
	IREntity string
	Class    dmo.ClassRef
	From     dmo.Endpoint
	To       dmo.Endpoint
}

// RelatedElementDef declares one foreign-key node.
type RelatedElementDef struct {
	Key               string
	Source            string
	Target            string
	IREntity          string
	Class             dmo.ClassRef
	From              dmo.Endpoint
	To                dmo.Endpoint
	ReferenceProperty string
}

// CompileMapping parses a CUE value into a Mapping.
//
// The CUE value should be the mapping struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`mapping: { subject: "Plant" ... }`)
//	m, err := CompileMapping(v.LookupPath(cue.ParsePath("mapping")))
func CompileMapping(v cue.Value) (*Mapping, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Mapping{}
	var err error

	if m.Subject, err = requiredString(v, "subject"); err != nil {
		return nil, err
	}
	if m.Connection, err = parseConnection(v); err != nil {
		return nil, err
	}
	if m.PrimaryKeys, err = parsePrimaryKeys(v); err != nil {
		return nil, err
	}
	if m.RelationshipSheets, err = optionalStringList(v, "relationship_sheets"); err != nil {
		return nil, err
	}
	if m.Models, err = parseModels(v); err != nil {
		return nil, err
	}
	if m.Elements, err = parseElements(v); err != nil {
		return nil, err
	}
	if m.Relationships, err = parseRelationships(v); err != nil {
		return nil, err
	}
	if m.RelatedElements, err = parseRelatedElements(v); err != nil {
		return nil, err
	}

	return m, nil
}

func parseConnection(v cue.Value) (loader.Connection, error) {
	cv := v.LookupPath(cue.ParsePath("connection"))
	if !cv.Exists() {
		return loader.Connection{}, &CompileError{Field: "connection", Message: "connection is required", Pos: v.Pos()}
	}
	var conn loader.Connection
	var err error
	if conn.Kind, err = requiredString(cv, "kind"); err != nil {
		return loader.Connection{}, err
	}
	if conn.Filepath, err = optionalString(cv, "filepath"); err != nil {
		return loader.Connection{}, err
	}
	if conn.BaseURL, err = optionalString(cv, "base_url"); err != nil {
		return loader.Connection{}, err
	}
	if err := conn.Validate(); err != nil {
		return loader.Connection{}, &CompileError{Field: "connection", Message: err.Error(), Pos: cv.Pos()}
	}
	return conn, nil
}

func parsePrimaryKeys(v cue.Value) (loader.PKConfig, error) {
	pv := v.LookupPath(cue.ParsePath("primary_keys"))
	if !pv.Exists() {
		return loader.PKConfig{}, &CompileError{Field: "primary_keys", Message: "primary_keys is required", Pos: v.Pos()}
	}
	var cfg loader.PKConfig
	var err error
	if cfg.Default, err = requiredString(pv, "default"); err != nil {
		return loader.PKConfig{}, err
	}

	ov := pv.LookupPath(cue.ParsePath("overrides"))
	if ov.Exists() {
		cfg.Overrides = make(map[string]string)
		iter, err := ov.Fields()
		if err != nil {
			return loader.PKConfig{}, formatCUEError(err)
		}
		for iter.Next() {
			val, err := iter.Value().String()
			if err != nil {
				return loader.PKConfig{}, formatCUEError(err)
			}
			cfg.Overrides[iter.Label()] = val
		}
	}
	return cfg, nil
}

func parseModels(v cue.Value) ([]ModelDef, error) {
	mv := v.LookupPath(cue.ParsePath("models"))
	if !mv.Exists() {
		return nil, nil
	}
	iter, err := mv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ModelDef
	for iter.Next() {
		def := ModelDef{Key: iter.Label()}
		fv := iter.Value()
		if def.PartitionClass, err = requiredString(fv, "partition_class"); err != nil {
			return nil, err
		}
		if def.ModelClass, err = requiredString(fv, "model_class"); err != nil {
			return nil, err
		}
		if def.IsDefinition, err = optionalBool(fv, "definition"); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func parseElements(v cue.Value) ([]ElementDef, error) {
	ev := v.LookupPath(cue.ParsePath("elements"))
	if !ev.Exists() {
		return nil, nil
	}
	iter, err := ev.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ElementDef
	for iter.Next() {
		def := ElementDef{Key: iter.Label()}
		fv := iter.Value()
		if def.Model, err = optionalString(fv, "model"); err != nil {
			return nil, err
		}
		if def.Parent, err = optionalString(fv, "parent"); err != nil {
			return nil, err
		}
		if def.IREntity, err = requiredString(fv, "ir_entity"); err != nil {
			return nil, err
		}
		if def.Class, err = parseClassRef(fv); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func parseRelationships(v cue.Value) ([]RelationshipDef, error) {
	rv := v.LookupPath(cue.ParsePath("relationships"))
	if !rv.Exists() {
		return nil, nil
	}
	iter, err := rv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []RelationshipDef
	for iter.Next() {
		def := RelationshipDef{Key: iter.Label()}
		fv := iter.Value()
		if err := parseRelCommon(fv, &def.Source, &def.Target, &def.IREntity, &def.From, &def.To); err != nil {
			return nil, err
		}
		if def.Class, err = parseClassRef(fv); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func parseRelatedElements(v cue.Value) ([]RelatedElementDef, error) {
	rv := v.LookupPath(cue.ParsePath("related_elements"))
	if !rv.Exists() {
		return nil, nil
	}
	iter, err := rv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []RelatedElementDef
	for iter.Next() {
		def := RelatedElementDef{Key: iter.Label()}
		fv := iter.Value()
		if err := parseRelCommon(fv, &def.Source, &def.Target, &def.IREntity, &def.From, &def.To); err != nil {
			return nil, err
		}
		if def.Class, err = parseClassRef(fv); err != nil {
			return nil, err
		}
		if def.ReferenceProperty, err = requiredString(fv, "reference_property"); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func parseRelCommon(fv cue.Value, source, target, irEntity *string, from, to *dmo.Endpoint) error {
	var err error
	if *source, err = requiredString(fv, "source"); err != nil {
		return err
	}
	if *target, err = requiredString(fv, "target"); err != nil {
		return err
	}
	if *irEntity, err = requiredString(fv, "ir_entity"); err != nil {
		return err
	}
	if *from, err = parseEndpoint(fv, "from"); err != nil {
		return err
	}
	if *to, err = parseEndpoint(fv, "to"); err != nil {
		return err
	}
	return nil
}

func parseEndpoint(v cue.Value, field string) (dmo.Endpoint, error) {
	ev := v.LookupPath(cue.ParsePath(field))
	if !ev.Exists() {
		return dmo.Endpoint{}, &CompileError{Field: field, Message: field + " endpoint is required", Pos: v.Pos()}
	}
	attr, err := requiredString(ev, "attr")
	if err != nil {
		return dmo.Endpoint{}, err
	}
	kindStr, err := optionalString(ev, "kind")
	if err != nil {
		return dmo.Endpoint{}, err
	}
	kind := dmo.EndpointIR
	switch kindStr {
	case "", "ir":
	case "existing":
		kind = dmo.EndpointExisting
	default:
		return dmo.Endpoint{}, &CompileError{
			Field: field + ".kind", Message: fmt.Sprintf("unknown endpoint kind %q (want \"ir\" or \"existing\")", kindStr), Pos: ev.Pos(),
		}
	}
	return dmo.Endpoint{Attr: attr, Kind: kind}, nil
}

// parseClassRef parses a class reference: a name, optionally with an
// embedded props or rel_props definition.
func parseClassRef(v cue.Value) (dmo.ClassRef, error) {
	cv := v.LookupPath(cue.ParsePath("class"))
	if !cv.Exists() {
		return dmo.ClassRef{}, &CompileError{Field: "class", Message: "class is required", Pos: v.Pos()}
	}

	var ref dmo.ClassRef
	var err error
	if ref.Name, err = requiredString(cv, "name"); err != nil {
		return dmo.ClassRef{}, err
	}

	pv := cv.LookupPath(cue.ParsePath("props"))
	if pv.Exists() {
		props := &dmo.ClassProps{}
		if props.Name, err = requiredString(pv, "name"); err != nil {
			return dmo.ClassRef{}, err
		}
		if props.BaseClass, err = optionalString(pv, "base_class"); err != nil {
			return dmo.ClassRef{}, err
		}
		if props.Properties, err = parseProperties(pv); err != nil {
			return dmo.ClassRef{}, err
		}
		ref.Props = props
	}

	rv := cv.LookupPath(cue.ParsePath("rel_props"))
	if rv.Exists() {
		relProps := &dmo.RelClassProps{}
		if relProps.Name, err = requiredString(rv, "name"); err != nil {
			return dmo.ClassRef{}, err
		}
		if relProps.BaseClass, err = optionalString(rv, "base_class"); err != nil {
			return dmo.ClassRef{}, err
		}
		if relProps.SourceClass, err = requiredString(rv, "source_class"); err != nil {
			return dmo.ClassRef{}, err
		}
		if relProps.TargetClass, err = requiredString(rv, "target_class"); err != nil {
			return dmo.ClassRef{}, err
		}
		if relProps.SourceMultiplicity, err = optionalString(rv, "source_multiplicity"); err != nil {
			return dmo.ClassRef{}, err
		}
		if relProps.TargetMultiplicity, err = optionalString(rv, "target_multiplicity"); err != nil {
			return dmo.ClassRef{}, err
		}
		ref.RelProps = relProps
	}

	return ref, nil
}

func parseProperties(v cue.Value) ([]dmo.PropertyDef, error) {
	pv := v.LookupPath(cue.ParsePath("properties"))
	if !pv.Exists() {
		return nil, nil
	}
	iter, err := pv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []dmo.PropertyDef
	for iter.Next() {
		var p dmo.PropertyDef
		if p.Name, err = requiredString(iter.Value(), "name"); err != nil {
			return nil, err
		}
		if p.Type, err = requiredString(iter.Value(), "type"); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
