package model

import "fmt"

// Node is one split or leaf of a fitted decision tree. Leaves have Left < 0.
// Value holds the class distribution of the training samples reaching the node.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// Tree is a binary decision tree stored as a flat node array rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// IsLeaf reports whether node i has no children.
func (t *Tree) IsLeaf(i int) bool {
	return t.Nodes[i].Left < 0 || t.Nodes[i].Right < 0
}

// DecisionPath returns the node indexes visited by x, root first.
// Samples go left when x[feature] <= threshold.
func (t *Tree) DecisionPath(x []float64) []int {
	path := make([]int, 0, 16)
	i := 0
	for {
		path = append(path, i)
		if t.IsLeaf(i) {
			return path
		}
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Leaf returns the index of the leaf x falls into.
func (t *Tree) Leaf(x []float64) int {
	path := t.DecisionPath(x)
	return path[len(path)-1]
}

// NodeProba returns the normalized share of class cls at node i.
func (t *Tree) NodeProba(i, cls int) float64 {
	v := t.Nodes[i].Value
	var total float64
	for _, c := range v {
		total += c
	}
	if total == 0 || cls >= len(v) {
		return 0
	}
	return v[cls] / total
}

// validate checks structural soundness so prediction never indexes out of range.
func (t *Tree) validate(nFeatures, nClasses int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if len(n.Value) != nClasses {
			return fmt.Errorf("node %d: value has %d entries, want %d", i, len(n.Value), nClasses)
		}
		if t.IsLeaf(i) {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// TreeClassifier covers both a single decision tree and a random forest,
// which averages the leaf distributions of its trees.
type TreeClassifier struct {
	name        string
	trees       []*Tree
	classes     []float64
	importances []float64
	nFeatures   int
}

// NewDecisionTreeClassifier wraps a single fitted tree.
func NewDecisionTreeClassifier(tree *Tree, classes []float64, importances []float64, nFeatures int) (*TreeClassifier, error) {
	return newTreeClassifier("DecisionTreeClassifier", []*Tree{tree}, classes, importances, nFeatures)
}

// NewRandomForestClassifier wraps a fitted forest.
func NewRandomForestClassifier(trees []*Tree, classes []float64, importances []float64, nFeatures int) (*TreeClassifier, error) {
	return newTreeClassifier("RandomForestClassifier", trees, classes, importances, nFeatures)
}

func newTreeClassifier(name string, trees []*Tree, classes []float64, importances []float64, nFeatures int) (*TreeClassifier, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%s: no trees", name)
	}
	if len(classes) == 0 {
		classes = []float64{0, 1}
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("%s: feature count must be positive", name)
	}
	if importances != nil && len(importances) != nFeatures {
		return nil, fmt.Errorf("%s: %d feature importances for %d features", name, len(importances), nFeatures)
	}
	for i, t := range trees {
		if t == nil {
			return nil, fmt.Errorf("%s: tree %d is nil", name, i)
		}
		if err := t.validate(nFeatures, len(classes)); err != nil {
			return nil, fmt.Errorf("%s: tree %d: %w", name, i, err)
		}
	}
	return &TreeClassifier{
		name:        name,
		trees:       trees,
		classes:     copyFloats(classes),
		importances: copyFloats(importances),
		nFeatures:   nFeatures,
	}, nil
}

func (m *TreeClassifier) Name() string { return m.name }
func (m *TreeClassifier) Kind() Kind { return KindTree }
func (m *TreeClassifier) NumFeatures() int { return m.nFeatures }
func (m *TreeClassifier) Trees() []*Tree { return m.trees }

// PositiveClass returns the index of the positive class column.
func (m *TreeClassifier) PositiveClass() int {
	if len(m.classes) > 1 {
		return 1
	}
	return 0
}

// FeatureImportances returns nil when the artifact carried none.
func (m *TreeClassifier) FeatureImportances() []float64 {
	return copyFloats(m.importances)
}

// PredictProba averages the normalized leaf distributions over all trees.
func (m *TreeClassifier) PredictProba(x []float64) []float64 {
	out := make([]float64, len(m.classes))
	for _, t := range m.trees {
		leaf := t.Leaf(x)
		for c := range out {
			out[c] += t.NodeProba(leaf, c)
		}
	}
	for c := range out {
		out[c] /= float64(len(m.trees))
	}
	return out
}

// Predict returns the most probable class label.
func (m *TreeClassifier) Predict(x []float64) float64 {
	proba := m.PredictProba(x)
	best := 0
	for c := range proba {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return m.classes[best]
}
