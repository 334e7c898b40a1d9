package preprocess

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

type numericField struct {
	feature  string
	keys     []string
	fallback float64
}

var numericFields = []numericField{
	{feature: "PID", keys: []string{"PID", "pid"}, fallback: 0},
	{feature: "Alter [J]", keys: []string{"Alter [J]", "alter", "age"}, fallback: 50},
	{feature: "abstand", keys: []string{"abstand", "days_between", "time_since_surgery"}, fallback: 365},
	{feature: "outcome_measurments.pre.measure.", keys: []string{"outcome_measurments.pre.measure.", "pre_measure", "measure_preop"}, fallback: 0},
}

var symptomFields = map[string][]string{
	FieldTaste:    {"geschmack", "taste"},
	FieldTinnitus: {"tinnitus"},
	FieldVertigo:  {"schwindel", "vertigo", "dizziness"},
	FieldOtorrhea: {"otorrhoe", "otorrhea", "ear_discharge"},
	FieldHeadache: {"kopfschmerzen", "headache"},
}

var ordinalFields = map[string][]string{
	FieldLossOperated: {"hearing_loss_operated", "hearing_loss_op", "hoerminderung_op"},
	FieldLossTime:     {"time_of_loss", "zeitpunkt"},
	FieldLossOnset:    {"onset", "beginn", "hearing_loss_onset"},
	FieldLossSevere:   {"severe_loss", "hochgradig"},
	FieldLossOther:    {"hearing_loss_other", "hearing_loss_other_ear", "hoerminderung_gegen"},
}

// intervalYearFields are ordinal columns whose imported form holds the
// interval in years rather than the interval label.
var intervalYearFields = map[string]string{
	FieldLossOnset:  "onset_interval",
	FieldLossSevere: "duration_interval",
}

// ordinalValues maps free-text anamnesis answers onto the numeric scale the
// model saw during training.
var ordinalValues = map[string]float64{
	"praelingual":            1,
	"prälingual":             1,
	"prelingual":             1,
	"< 1 y":                  1,
	"perilingual":            2,
	"1-2 y":                  2,
	"1-5 y":                  2,
	"postlingual":            3,
	"> 20 y":                 3,
	"10-20 y":                3,
	"5-10 y":                 3,
	"erworben – prälingual":  1,
	"erworben - prälingual":  1,
	"erworben - perilingual": 2,
	"erworben - postlingual": 3,
	"erworben – postlingual": 3,
	"angeboren":              0,
	"kongenital":             0,
	"hochgradiger hv":        2,
	"hochgradig":             2,
	"taubheit (profound hl)": 3,
	"taubheit":               3,
	"profound":               3,
	"mittelgradig":           1,
	"leichtgradig":           0.5,
	"unbekannt":              0,
	"unbekannt/ka":           0,
}

var truthyStrings = map[string]bool{
	"ja": true, "yes": true, "1": true, "true": true, "vorhanden": true,
}

type oneHotGroup struct {
	field    string
	prefix   string
	aliases  []string
	fallback string
}

var oneHotGroups = []oneHotGroup{
	{field: FieldImaging, prefix: PrefixImaging, aliases: []string{"bildgebung", "imaging", "imaging_findings"}, fallback: "Normalbefund"},
	{field: FieldLL, prefix: PrefixLL, aliases: []string{"ll_measurement", "obj_ll"}},
	{field: Field4000Hz, prefix: Prefix4000Hz, aliases: []string{"hz4000_measurement", "obj_4000hz"}},
	{field: FieldCause, prefix: PrefixCause, aliases: []string{"ursache", "cause"}},
	{field: FieldContraSupply, prefix: PrefixContraSup, aliases: []string{"versorgung_gegen", "contra_supply", "care_other_ear"}, fallback: "Keine Versorgung"},
	{field: FieldImplant, prefix: PrefixImplant, aliases: []string{"implant_type", "ci_type", "implant_details"}},
	{field: FieldOpSupply, prefix: PrefixOpSupply, aliases: []string{"versorgung_op", "care_op_ear"}},
	{field: FieldAcquisition, prefix: PrefixAcquisition, aliases: []string{"erwerbsart", "acquisition", "acquisition_type"}},
	{field: FieldDisorder, prefix: PrefixDisorder, aliases: []string{"hoerstoerung", "disorder_type"}},
}

// PreprocessPatientData converts a raw patient record into the 68-column
// vector in ExpectedFeatures order. Missing fields take training defaults and
// unknown keys are ignored, so the result is always NumFeatures wide.
func PreprocessPatientData(raw map[string]interface{}) []float64 {
	vec := make([]float64, NumFeatures)
	if raw == nil {
		raw = map[string]interface{}{}
	}

	for _, nf := range numericFields {
		v, _ := lookup(raw, nf.keys...)
		vec[FeatureIndex(nf.feature)] = toFloat(v, nf.fallback)
	}

	vec[FeatureIndex(FieldSide)] = sideValue(raw)

	for feature, aliases := range symptomFields {
		if symptomPresent(lookupSet(raw, feature, aliases)) {
			vec[FeatureIndex(feature)] = 1
		}
	}

	for feature, aliases := range ordinalFields {
		if v := lookupSet(raw, feature, aliases); v != nil {
			vec[FeatureIndex(feature)] = OrdinalValue(v)
		} else if v := raw[intervalYearFields[feature]]; v != nil {
			vec[FeatureIndex(feature)] = intervalOrdinal(v)
		}
	}

	gender, ok := lookup(raw, "Geschlecht", "geschlecht", "gender")
	if !ok {
		gender = "w"
	}
	if isMale(gender) {
		vec[FeatureIndex("Geschlecht_m")] = 1
	} else {
		vec[FeatureIndex("Geschlecht_w")] = 1
	}

	for _, g := range oneHotGroups {
		v, _ := lookup(raw, append([]string{g.field}, g.aliases...)...)
		setOneHot(vec, g.prefix, v, g.fallback)
	}

	return vec
}

// OrdinalValue maps a hearing-loss anamnesis answer onto its ordinal scale.
// Unknown text parses as a number, falling back to 0.
func OrdinalValue(v interface{}) float64 {
	if v == nil {
		return 0
	}
	s := strings.ToLower(strings.TrimSpace(cast.ToString(v)))
	if n, ok := ordinalValues[s]; ok {
		return n
	}
	return toFloat(v, 0)
}

// intervalOrdinal buckets an interval given in years onto the interval
// label scale: under a year is 1, under five years 2, longer 3. Labels that
// were kept as text go through OrdinalValue.
func intervalOrdinal(v interface{}) float64 {
	if _, isStr := v.(string); isStr {
		return OrdinalValue(v)
	}
	years, err := cast.ToFloat64E(v)
	switch {
	case err != nil:
		return 0
	case years < 1:
		return 1
	case years < 5:
		return 2
	}
	return 3
}

// lookup returns the value of the first key present in raw. A key holding
// nil still counts as present.
func lookup(raw map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupSet returns the canonical value when it is set, otherwise the value
// of the first alias present.
func lookupSet(raw map[string]interface{}, canonical string, aliases []string) interface{} {
	if v := raw[canonical]; v != nil {
		return v
	}
	v, _ := lookup(raw, aliases...)
	return v
}

func toFloat(v interface{}, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fallback
		}
		return f
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return f
}

// sideValue encodes the implanted side: 1 for left, 2 for anything else.
func sideValue(raw map[string]interface{}) float64 {
	v, ok := lookup(raw, "Seiten", "seite", "implant_side")
	if !ok || v == nil {
		return 1
	}
	if s, isStr := v.(string); isStr {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "l", "links", "left":
			return 1
		}
		return 2
	}
	return toFloat(v, 1)
}

func symptomPresent(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return truthyStrings[strings.ToLower(strings.TrimSpace(t))]
	case bool:
		return t
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	f, err := cast.ToFloat64E(v)
	return err == nil && f != 0
}

func isMale(v interface{}) bool {
	switch strings.ToLower(strings.TrimSpace(cast.ToString(v))) {
	case "m", "male", "männlich":
		return true
	}
	return false
}

// setOneHot sets exactly one column of the group whose prefix is given.
// Matching runs in three passes over the group's column suffixes: exact or
// substring match, then any shared word, then the fallback category.
func setOneHot(vec []float64, prefix string, value interface{}, fallback string) {
	str := ""
	if value != nil {
		str = strings.TrimSpace(cast.ToString(value))
	}
	if str == "" {
		str = fallback
	}
	if str == "" {
		return
	}

	needle := strings.ToLower(str)
	cols := columnsWithPrefix(prefix)

	for _, i := range cols {
		suffix := columnSuffix(ExpectedFeatures[i])
		if needle == suffix || strings.Contains(suffix, needle) || strings.Contains(needle, suffix) {
			vec[i] = 1
			return
		}
	}

	words := strings.Fields(needle)
	for _, i := range cols {
		suffixWords := strings.Fields(columnSuffix(ExpectedFeatures[i]))
		for _, w := range words {
			if containsString(suffixWords, w) {
				vec[i] = 1
				return
			}
		}
	}

	if fallback == "" {
		return
	}
	lf := strings.ToLower(fallback)
	for _, i := range cols {
		if strings.Contains(strings.ToLower(ExpectedFeatures[i]), lf) {
			vec[i] = 1
			return
		}
	}
}

// columnSuffix returns the lowercased category part after the first underscore.
func columnSuffix(feature string) string {
	_, after, found := strings.Cut(feature, "_")
	if !found {
		return strings.ToLower(feature)
	}
	return strings.ToLower(after)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
