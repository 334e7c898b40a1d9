package dataset

import (
	"github.com/hear-ci-prediction-service/internal/preprocess"
)

// CochlearImplantAdapter is the hard-coded CI outcome schema backed by the
// preprocess package.
type CochlearImplantAdapter struct{}

// NewCochlearImplantAdapter returns the default adapter.
func NewCochlearImplantAdapter() *CochlearImplantAdapter {
	return &CochlearImplantAdapter{}
}

// Preprocess returns the 68-wide CI vector. It never fails.
func (a *CochlearImplantAdapter) Preprocess(raw map[string]interface{}) ([]float64, error) {
	return preprocess.PreprocessPatientData(raw), nil
}

func (a *CochlearImplantAdapter) FeatureNames() []string {
	return preprocess.FeatureNames()
}

func (a *CochlearImplantAdapter) FeatureSchema() Schema {
	return Schema{
		DatasetName: "cochlear_implant_outcome",
		Description: "Cochlear implant outcome prediction features",
		NFeatures:   preprocess.NumFeatures,
		Features: []FeatureSpec{
			{
				Name:        preprocess.FieldAge,
				Type:        TypeNumeric,
				Aliases:     []string{"age", "alter"},
				Default:     50,
				Description: "Patient age in years",
			},
			{
				Name:        preprocess.FieldGender,
				Type:        TypeCategorical,
				Aliases:     []string{"gender"},
				Values:      []string{"m", "w", "d"},
				Description: "Patient gender",
			},
			{
				Name:        preprocess.FieldImplant,
				Type:        TypeCategorical,
				Aliases:     []string{"implant_type", "ci_type"},
				Description: "Type of cochlear implant",
			},
		},
	}
}

// ValidateInput accepts any record whose age, when given, is a number in
// 0..120.
func (a *CochlearImplantAdapter) ValidateInput(raw map[string]interface{}) (bool, string) {
	var age interface{}
	for _, key := range []string{preprocess.FieldAge, "age", "alter"} {
		if v := raw[key]; truthy(v) {
			age = v
			break
		}
	}
	if age == nil {
		return true, ""
	}

	val, err := toFloat(age)
	if err != nil {
		return false, "Age must be a valid number"
	}
	if val < 0 || val > 120 {
		return false, "Age must be between 0 and 120 years"
	}
	return true, ""
}
