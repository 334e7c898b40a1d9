package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Hidden layer activations of MLPClassifier.
const (
	ActivationReLU     = "relu"
	ActivationTanh     = "tanh"
	ActivationLogistic = "logistic"
	ActivationIdentity = "identity"
)

// MLPClassifier is a binary multi-layer perceptron. Layer l maps its input
// through an (n_in, n_out) weight matrix plus bias; hidden layers apply the
// activation and the single output unit the logistic function. It has no
// linear weights or tree structure, so explainers treat it as generic.
type MLPClassifier struct {
	weights    []*mat.Dense
	biases     []*mat.VecDense
	activation string
	ClassTags  []float64
}

// NewMLPClassifier builds a network from per-layer weight matrices and bias
// vectors in input-to-output order. An empty activation means relu.
func NewMLPClassifier(coefs [][][]float64, intercepts [][]float64, activation string, classes []float64) (*MLPClassifier, error) {
	if len(coefs) == 0 {
		return nil, fmt.Errorf("MLPClassifier needs at least one layer")
	}
	if len(coefs) != len(intercepts) {
		return nil, fmt.Errorf("MLPClassifier has %d weight layers but %d bias layers", len(coefs), len(intercepts))
	}
	if activation == "" {
		activation = ActivationReLU
	}
	switch activation {
	case ActivationReLU, ActivationTanh, ActivationLogistic, ActivationIdentity:
	default:
		return nil, fmt.Errorf("unsupported MLP activation: %s", activation)
	}

	m := &MLPClassifier{activation: activation, ClassTags: []float64{0, 1}}
	if len(classes) >= 2 {
		m.ClassTags = copyFloats(classes)
	}

	width := 0
	for l, layer := range coefs {
		rows := len(layer)
		if rows == 0 || len(layer[0]) == 0 {
			return nil, fmt.Errorf("MLP layer %d is empty", l)
		}
		if l > 0 && rows != width {
			return nil, fmt.Errorf("MLP layer %d expects %d inputs, previous layer has %d outputs", l, rows, width)
		}
		cols := len(layer[0])
		w := mat.NewDense(rows, cols, nil)
		for i, row := range layer {
			if len(row) != cols {
				return nil, fmt.Errorf("MLP layer %d row %d has %d weights, want %d", l, i, len(row), cols)
			}
			w.SetRow(i, row)
		}
		if len(intercepts[l]) != cols {
			return nil, fmt.Errorf("MLP layer %d has %d biases for %d units", l, len(intercepts[l]), cols)
		}
		m.weights = append(m.weights, w)
		m.biases = append(m.biases, mat.NewVecDense(cols, copyFloats(intercepts[l])))
		width = cols
	}
	if width != 1 {
		return nil, fmt.Errorf("MLP output layer has %d units, binary classifier needs 1", width)
	}
	return m, nil
}

func (m *MLPClassifier) Name() string { return "MLPClassifier" }
func (m *MLPClassifier) Kind() Kind { return KindGeneric }

func (m *MLPClassifier) NumFeatures() int {
	rows, _ := m.weights[0].Dims()
	return rows
}

// PredictProba returns [P(negative), P(positive)].
func (m *MLPClassifier) PredictProba(x []float64) []float64 {
	p := m.forward(x)
	return []float64{1 - p, p}
}

func (m *MLPClassifier) Predict(x []float64) float64 {
	return binaryLabel(m.ClassTags, m.forward(x) >= 0.5)
}

func (m *MLPClassifier) forward(x []float64) float64 {
	h := mat.NewVecDense(len(x), copyFloats(x))
	last := len(m.weights) - 1
	for l, w := range m.weights {
		_, units := w.Dims()
		z := mat.NewVecDense(units, nil)
		z.MulVec(w.T(), h)
		z.AddVec(z, m.biases[l])
		if l < last {
			for i := 0; i < units; i++ {
				z.SetVec(i, m.activate(z.AtVec(i)))
			}
		}
		h = z
	}
	return Sigmoid(h.AtVec(0))
}

func (m *MLPClassifier) activate(v float64) float64 {
	switch m.activation {
	case ActivationTanh:
		return math.Tanh(v)
	case ActivationLogistic:
		return Sigmoid(v)
	case ActivationIdentity:
		return v
	}
	return math.Max(0, v)
}
