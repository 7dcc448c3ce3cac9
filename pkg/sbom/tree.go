package sbom

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// TreeRoots returns the recursive tree of res: one node per direct
// component with its full subtree. The result is never nil.
func TreeRoots(res *scanner.Result) []*deps.TreeNode {
	if res.Tree == nil {
		res.BuildTree()
	}
	if len(res.Tree.Roots) == 0 {
		return []*deps.TreeNode{}
	}
	return res.Tree.Roots
}

// EncodeTree writes the dependency tree of res as indented JSON.
func EncodeTree(w io.Writer, res *scanner.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(TreeRoots(res)); err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return nil
}
