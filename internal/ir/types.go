package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Entity represents one external source class: a spreadsheet sheet, a JSON
// document key, or a relational table. Instances keep source order except that
// duplicate instance keys (compared case-insensitively) collapse to the
// last-seen instance, holding the position of the first occurrence.
type Entity struct {
	Key       string
	Instances []*Instance
}

// NewEntity builds an Entity from instances, applying the duplicate-key
// collapse rule.
func NewEntity(key string, instances []*Instance) *Entity {
	e := &Entity{Key: key}
	seen := make(map[string]int)
	for _, inst := range instances {
		lower := strings.ToLower(inst.Key())
		if idx, ok := seen[lower]; ok {
			e.Instances[idx] = inst
			continue
		}
		seen[lower] = len(e.Instances)
		e.Instances = append(e.Instances, inst)
	}
	return e
}

// Instance is one external record, normalized. Identity and content hash are
// derived at construction and never change afterward.
type Instance struct {
	EntityKey      string
	PrimaryKeyAttr string
	Data           map[string]any
	Version        string

	key      string
	checksum string
}

// NewInstance constructs an Instance. The primary-key attribute MUST be
// present in data; construction fails otherwise. version is an opaque
// freshness token supplied by the loader (typically the source file mtime).
func NewInstance(entityKey, primaryKeyAttr string, data map[string]any, version string) (*Instance, error) {
	pk, ok := data[primaryKeyAttr]
	if !ok {
		return nil, fmt.Errorf("instance of %q: primary key attribute %q not found in data", entityKey, primaryKeyAttr)
	}
	pkStr, err := attrString(pk)
	if err != nil {
		return nil, fmt.Errorf("instance of %q: primary key attribute %q: %w", entityKey, primaryKeyAttr, err)
	}
	checksum, err := DataChecksum(data)
	if err != nil {
		return nil, fmt.Errorf("instance of %q: %w", entityKey, err)
	}
	return &Instance{
		EntityKey:      entityKey,
		PrimaryKeyAttr: primaryKeyAttr,
		Data:           data,
		Version:        version,
		key:            entityKey + "-" + pkStr,
		checksum:       checksum,
	}, nil
}

// Key returns the stable cross-run identity of this instance:
// entityKey + "-" + data[primaryKeyAttr].
func (i *Instance) Key() string { return i.key }

// Checksum returns the content hash of the data map.
func (i *Instance) Checksum() string { return i.checksum }

// Get returns the named attribute value as a string, or "" and false when the
// attribute is absent or not representable as a scalar.
func (i *Instance) Get(attr string) (string, bool) {
	v, ok := i.Data[attr]
	if !ok {
		return "", false
	}
	s, err := attrString(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// attrString renders a scalar attribute value as a string. Loaders decode
// source values as string, bool, json.Number or float64; anything else is not
// a legal lookup or primary-key value.
func attrString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("value of type %T is not a scalar", v)
	}
}
