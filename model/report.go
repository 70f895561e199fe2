package model

import "time"

// NodeStatus describes how a recursion branch ended
type NodeStatus string

const (
	NodeStatusOK             NodeStatus = "ok"
	NodeStatusNoResults      NodeStatus = "no_results"
	NodeStatusLowQuality     NodeStatus = "low_quality"
	NodeStatusLookupError    NodeStatus = "lookup_error"
	NodeStatusDuplicateQuery NodeStatus = "duplicate_query"
	NodeStatusBudgetReached  NodeStatus = "budget_reached"
	NodeStatusCancelled      NodeStatus = "cancelled"
)

// RecursionNode represents one explored branch of a retrieval call.
// Nodes live in the arena of their RecursionTree and reference each other
// by index, so the tree never forms reference cycles.
type RecursionNode struct {
	ID       int        `json:"id"`
	Query    string     `json:"query"`
	Depth    int        `json:"depth"`
	Results  int        `json:"results"`
	AvgScore float64    `json:"avg_score"`
	Status   NodeStatus `json:"status"`
	// Failed is set when the branch produced no candidates or fell below min_result_quality
	Failed bool `json:"failed,omitempty"`
	// Err holds the message of a branch-local lookup failure
	Err string `json:"error,omitempty"`
	// Searched is set once a vector store lookup was actually issued for the node
	Searched bool  `json:"searched"`
	Parent   int   `json:"parent"`
	Children []int `json:"children,omitempty"`
}

// RecursionTree is an arena of RecursionNodes rooted at the original query
type RecursionTree struct {
	Nodes []RecursionNode `json:"nodes"`
}

// NewRecursionTree creates an empty tree
func NewRecursionTree() *RecursionTree {
	return &RecursionTree{}
}

// AddNode appends a node for the given query and depth and links it to its
// parent. Pass parent -1 for the root. It returns the id of the new node.
func (t *RecursionTree) AddNode(parent int, query string, depth int) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, RecursionNode{
		ID:     id,
		Query:  query,
		Depth:  depth,
		Parent: parent,
	})
	if parent >= 0 && parent < len(t.Nodes)-1 {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	}
	return id
}

// Node returns the node with the given id, or nil for an unknown id
func (t *RecursionTree) Node(id int) *RecursionNode {
	if id < 0 || id >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[id]
}

// Root returns the root node, or nil for an empty tree
func (t *RecursionTree) Root() *RecursionNode {
	if len(t.Nodes) == 0 {
		return nil
	}
	return &t.Nodes[0]
}

// PathTo returns the queries on the path from the root to the given node,
// root first. It returns nil for an unknown id.
func (t *RecursionTree) PathTo(id int) []string {
	node := t.Node(id)
	if node == nil {
		return nil
	}
	var reversed []string
	for node != nil {
		reversed = append(reversed, node.Query)
		node = t.Node(node.Parent)
	}
	path := make([]string, len(reversed))
	for i, query := range reversed {
		path[len(reversed)-1-i] = query
	}
	return path
}

// Walk visits every node depth-first in child insertion order
func (t *RecursionTree) Walk(visit func(node *RecursionNode)) {
	if len(t.Nodes) == 0 {
		return
	}
	t.walk(0, visit)
}

func (t *RecursionTree) walk(id int, visit func(node *RecursionNode)) {
	node := t.Node(id)
	visit(node)
	for _, child := range node.Children {
		t.walk(child, visit)
	}
}

// MaxSearchedDepth returns the deepest level at which a lookup was issued.
// An empty tree reports depth 1.
func (t *RecursionTree) MaxSearchedDepth() int {
	maxDepth := 1
	for i := range t.Nodes {
		if t.Nodes[i].Searched && t.Nodes[i].Depth > maxDepth {
			maxDepth = t.Nodes[i].Depth
		}
	}
	return maxDepth
}

// ContainsPath reports whether the given root-to-node query sequence matches
// a path present in the tree
func (t *RecursionTree) ContainsPath(path []string) bool {
	if len(path) == 0 || len(t.Nodes) == 0 {
		return false
	}
	return t.containsPath(0, path)
}

func (t *RecursionTree) containsPath(id int, path []string) bool {
	node := t.Node(id)
	if node.Query != path[0] {
		return false
	}
	if len(path) == 1 {
		return true
	}
	for _, child := range node.Children {
		if t.containsPath(child, path[1:]) {
			return true
		}
	}
	return false
}

// Report summarizes a completed retrieval call. It is read-only for callers.
type Report struct {
	// RecursionDepthUsed is the deepest level at which a lookup was issued
	RecursionDepthUsed int `json:"recursion_depth_used"`
	// TotalResults counts all candidates seen across branches before dedup
	TotalResults int `json:"total_results"`
	// FinalResults counts the candidates returned to the caller
	FinalResults  int           `json:"final_results"`
	ExecutionTime time.Duration `json:"execution_time"`
	// Partial is set when the call was cancelled or timed out mid-expansion
	Partial bool `json:"partial,omitempty"`
	// SubQueryFallbacks counts generator fallbacks from the model-backed strategy
	SubQueryFallbacks int `json:"sub_query_fallbacks,omitempty"`
	// RerankFallback is set when the primary similarity method degraded to the fallback
	RerankFallback bool           `json:"rerank_fallback,omitempty"`
	Tree           *RecursionTree `json:"retrieval_tree,omitempty"`
}
