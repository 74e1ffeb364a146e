package orchestrator

import (
	"strings"

	"idp.evalgo.org/domain"
)

// schemaNodeAt walks a rule version's schema tree to the node addressed
// by a dotted field path (the same path grammar clean.Get/Set use),
// descending through object children. An array/table node met before a
// segment is stepped through into its Item, which then resolves that
// segment — array broadcast means every element shares one node
// definition; a path that ends on an array/table returns that node
// itself. Returns nil when the path isn't present in the tree.
func schemaNodeAt(root *domain.SchemaNode, path string) *domain.SchemaNode {
	if root == nil || path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	node := root
	for _, seg := range segments {
		for node != nil && (node.Kind == domain.SchemaArray || node.Kind == domain.SchemaTable) {
			node = node.Item
		}
		if node == nil || node.Kind != domain.SchemaObject {
			return nil
		}
		child, ok := node.Children[seg]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// isArrayPath reports whether the schema node addressed by path is an
// array or table node — the shape extract.Strategy.Extract needs to
// decide whether to broadcast a single match or collect every match.
func isArrayPath(root *domain.SchemaNode, path string) bool {
	node := schemaNodeAt(root, path)
	if node == nil {
		return false
	}
	return node.Kind == domain.SchemaArray || node.Kind == domain.SchemaTable
}

// gateThreshold resolves one field's audit-gate confidence threshold:
// the schema node's own declared threshold if set, else the rule's
// enhancement-configured threshold if enabled, else the fixed default
// of 80 (schema-declared, else a rule default, else 80).
func gateThreshold(root *domain.SchemaNode, path string, cfg *domain.RuleVersionConfig) int {
	const fallback = 80
	ruleDefault := fallback
	if cfg != nil && cfg.Enhance.Enabled && cfg.Enhance.ConfidenceThreshold > 0 {
		ruleDefault = cfg.Enhance.ConfidenceThreshold
	}
	node := schemaNodeAt(root, path)
	return node.Threshold(ruleDefault)
}
