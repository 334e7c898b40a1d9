package model

// LogisticRegression is a binary logistic classifier.
type LogisticRegression struct {
	Coef      []float64
	Bias      float64
	ClassTags []float64 // negative class first
}

// NewLogisticRegression builds a classifier with labels {0, 1}.
func NewLogisticRegression(coef []float64, intercept float64) *LogisticRegression {
	return &LogisticRegression{Coef: copyFloats(coef), Bias: intercept, ClassTags: []float64{0, 1}}
}

func (m *LogisticRegression) Name() string { return "LogisticRegression" }
func (m *LogisticRegression) Kind() Kind { return KindLinear }
func (m *LogisticRegression) NumFeatures() int { return len(m.Coef) }
func (m *LogisticRegression) Coefficients() []float64 { return copyFloats(m.Coef) }
func (m *LogisticRegression) Intercept() float64 { return m.Bias }
func (m *LogisticRegression) DecisionFunction(x []float64) float64 { return dot(m.Coef, x) + m.Bias }

// PredictProba returns [P(negative), P(positive)].
func (m *LogisticRegression) PredictProba(x []float64) []float64 {
	p := Sigmoid(m.DecisionFunction(x))
	return []float64{1 - p, p}
}

func (m *LogisticRegression) Predict(x []float64) float64 {
	return binaryLabel(m.ClassTags, m.DecisionFunction(x) >= 0)
}

// LinearSVC is a linear margin classifier without calibrated probabilities.
type LinearSVC struct {
	Coef      []float64
	Bias      float64
	ClassTags []float64
}

// NewLinearSVC builds a margin classifier with labels {0, 1}.
func NewLinearSVC(coef []float64, intercept float64) *LinearSVC {
	return &LinearSVC{Coef: copyFloats(coef), Bias: intercept, ClassTags: []float64{0, 1}}
}

func (m *LinearSVC) Name() string { return "LinearSVC" }
func (m *LinearSVC) Kind() Kind { return KindLinear }
func (m *LinearSVC) NumFeatures() int { return len(m.Coef) }
func (m *LinearSVC) Coefficients() []float64 { return copyFloats(m.Coef) }
func (m *LinearSVC) Intercept() float64 { return m.Bias }
func (m *LinearSVC) DecisionFunction(x []float64) float64 { return dot(m.Coef, x) + m.Bias }

func (m *LinearSVC) Predict(x []float64) float64 {
	return binaryLabel(m.ClassTags, m.DecisionFunction(x) >= 0)
}

// LinearRegression is an ordinary least squares regressor.
type LinearRegression struct {
	Coef []float64
	Bias float64
}

// NewLinearRegression builds a regressor.
func NewLinearRegression(coef []float64, intercept float64) *LinearRegression {
	return &LinearRegression{Coef: copyFloats(coef), Bias: intercept}
}

func (m *LinearRegression) Name() string { return "LinearRegression" }
func (m *LinearRegression) Kind() Kind { return KindLinear }
func (m *LinearRegression) NumFeatures() int { return len(m.Coef) }
func (m *LinearRegression) Coefficients() []float64 { return copyFloats(m.Coef) }
func (m *LinearRegression) Intercept() float64 { return m.Bias }
func (m *LinearRegression) IsRegressor() bool { return true }
func (m *LinearRegression) Predict(x []float64) float64 { return dot(m.Coef, x) + m.Bias }

func binaryLabel(classes []float64, positive bool) float64 {
	if len(classes) < 2 {
		if positive {
			return 1
		}
		return 0
	}
	if positive {
		return classes[1]
	}
	return classes[0]
}
