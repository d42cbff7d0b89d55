package connector

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/karsol/graft/internal/node"
)

// treeSnapshot is the debug dump shape: the node tree plus the job config.
// Diagnostic only, never a durable format.
type treeSnapshot struct {
	Tree   []node.NodeSnapshot `json:"tree"`
	Config Config              `json:"config"`
}

// Save writes the {tree, config} debug snapshot to path as indented JSON.
func (c *Connector) Save(path string) error {
	snap := treeSnapshot{Tree: c.tree.Snapshot(), Config: c.cfg}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tree snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write tree snapshot: %w", err)
	}
	return nil
}

// SnapshotJSON returns the debug snapshot as indented JSON.
func (c *Connector) SnapshotJSON() ([]byte, error) {
	snap := treeSnapshot{Tree: c.tree.Snapshot(), Config: c.cfg}
	return json.MarshalIndent(snap, "", "  ")
}
