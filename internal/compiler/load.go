package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadDir loads the CUE package in dir and compiles every field of its
// top-level "mapping" struct.
func LoadDir(dir string) ([]*Mapping, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %q", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files in %q: %w", dir, inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	mappingsVal := value.LookupPath(cue.ParsePath("mapping"))
	if !mappingsVal.Exists() {
		return nil, fmt.Errorf("no top-level \"mapping\" struct in %q", dir)
	}
	iter, err := mappingsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*Mapping
	for iter.Next() {
		m, err := CompileMapping(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("mapping %q: %w", iter.Label(), err)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty \"mapping\" struct in %q", dir)
	}
	return out, nil
}
