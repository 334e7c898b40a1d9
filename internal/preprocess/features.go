// Package preprocess turns raw clinical patient fields into the fixed-width
// numeric vector the cochlear implant outcome model was trained on.
package preprocess

import "strings"

// Column prefixes of the one-hot encoded groups.
const (
	PrefixImaging     = "Bildgebung, präoperativ.Befunde..._"
	PrefixLL          = "Objektive Messungen.LL..._"
	Prefix4000Hz      = "Objektive Messungen.4000 Hz..._"
	PrefixCause       = "Diagnose.Höranamnese.Ursache....Ursache..._"
	PrefixContraSup   = "Diagnose.Höranamnese.Versorgung Gegenohr..._"
	PrefixImplant     = "Behandlung/OP.CI Implantation_"
	PrefixOpSupply    = "Diagnose.Höranamnese.Versorgung operiertes Ohr..._"
	PrefixAcquisition = "Diagnose.Höranamnese.Erwerbsart..._"
	PrefixDisorder    = "Diagnose.Höranamnese.Art der Hörstörung..._"
)

// Raw clinical field names as they appear in exports and API payloads.
const (
	FieldPID          = "PID"
	FieldAge          = "Alter [J]"
	FieldSide         = "Seiten"
	FieldTaste        = "Symptome präoperativ.Geschmack..."
	FieldTinnitus     = "Symptome präoperativ.Tinnitus..."
	FieldVertigo      = "Symptome präoperativ.Schwindel..."
	FieldOtorrhea     = "Symptome präoperativ.Otorrhoe..."
	FieldHeadache     = "Symptome präoperativ.Kopfschmerzen..."
	FieldLossOperated = "Diagnose.Höranamnese.Hörminderung operiertes Ohr..."
	FieldLossTime     = "Diagnose.Höranamnese.Zeitpunkt des Hörverlusts (OP-Ohr)..."
	FieldLossOnset    = "Diagnose.Höranamnese.Beginn der Hörminderung (OP-Ohr)..."
	FieldLossSevere   = "Diagnose.Höranamnese.Hochgradige Hörminderung oder Taubheit (OP-Ohr)..."
	FieldLossOther    = "Diagnose.Höranamnese.Hörminderung Gegenohr..."
	FieldPreMeasure   = "outcome_measurments.pre.measure."
	FieldInterval     = "abstand"
	FieldGender       = "Geschlecht"
	FieldImaging      = "Bildgebung, präoperativ.Befunde..."
	FieldLL           = "Objektive Messungen.LL..."
	Field4000Hz       = "Objektive Messungen.4000 Hz..."
	FieldCause        = "Diagnose.Höranamnese.Ursache....Ursache..."
	FieldContraSupply = "Diagnose.Höranamnese.Versorgung Gegenohr..."
	FieldImplant      = "Behandlung/OP.CI Implantation"
	FieldOpSupply     = "Diagnose.Höranamnese.Versorgung operiertes Ohr..."
	FieldAcquisition  = "Diagnose.Höranamnese.Erwerbsart..."
	FieldDisorder     = "Diagnose.Höranamnese.Art der Hörstörung..."
)

// ExpectedFeatures lists the 68 model columns in training order.
var ExpectedFeatures = []string{
	"PID",
	"Alter [J]",
	"Seiten",
	"Symptome präoperativ.Geschmack...",
	"Symptome präoperativ.Tinnitus...",
	"Symptome präoperativ.Schwindel...",
	"Symptome präoperativ.Otorrhoe...",
	"Symptome präoperativ.Kopfschmerzen...",
	"Diagnose.Höranamnese.Hörminderung operiertes Ohr...",
	"Diagnose.Höranamnese.Zeitpunkt des Hörverlusts (OP-Ohr)...",
	"Diagnose.Höranamnese.Beginn der Hörminderung (OP-Ohr)...",
	"Diagnose.Höranamnese.Hochgradige Hörminderung oder Taubheit (OP-Ohr)...",
	"Diagnose.Höranamnese.Hörminderung Gegenohr...",
	"outcome_measurments.pre.measure.",
	"abstand",
	"Geschlecht_m",
	"Geschlecht_w",
	PrefixImaging + "Anomalie der Bogengänge, Sonstige",
	PrefixImaging + "Cochleäre Fehlbildung (Sennaroglu), Anomalie der Bogengänge",
	PrefixImaging + "Cochleäre Ossifikation",
	PrefixImaging + "Gehirnpathologie",
	PrefixImaging + "Normalbefund",
	PrefixImaging + "Normalbefund, Sonstige",
	PrefixImaging + "Otosklerose",
	PrefixImaging + "Sonstige",
	PrefixImaging + "Sonstige, Cochleäre Ossifikation",
	PrefixImaging + "Sonstige, Otosklerose",
	PrefixImaging + "nan",
	PrefixLL + "Keine Reizantwort",
	PrefixLL + "Nicht erhoben",
	PrefixLL + "Schwelle",
	Prefix4000Hz + "Keine Reizantwort",
	Prefix4000Hz + "Nicht erhoben",
	Prefix4000Hz + "Schwelle",
	PrefixCause + "Andere",
	PrefixCause + "Hörsturz",
	PrefixCause + "Hörsturz, M. Menière",
	PrefixCause + "Infektiös",
	PrefixCause + "M. Menière",
	PrefixCause + "Other",
	PrefixCause + "Syndromal",
	PrefixCause + "unknown",
	PrefixCause + "nan",
	PrefixContraSup + "CI",
	PrefixContraSup + "Hörgerät",
	PrefixContraSup + "Keine Versorgung",
	PrefixImplant + "Behandlung/OP.CI Implantation.Advanced Bionics... HiRes Ultra (HiFocus SlimJ)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Advanced Bionics... HiRes Ultra 3D (HiFocus Mid-Scala)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Advanced Bionics... HiRes Ultra 3D (HiFocus SlimJ)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile CI512 (Contour Advance)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile CI522 (Slim Straight)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile CI532 (Slim Modiolar)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile Plus CI612 (Contour Advance)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile Plus CI622 (Slim Straight)",
	PrefixImplant + "Behandlung/OP.CI Implantation.Cochlear... Nucleus Profile Plus CI632 (Slim Modiolar)",
	PrefixImplant + "Behandlung/OP.CI Implantation.MED-EL... Implantattyp, Elektrodentyp",
	PrefixImplant + "Behandlung/OP.CI Implantation.Oticon Medical... Neuro Zti EVO",
	PrefixOpSupply + "Hörgerät",
	PrefixOpSupply + "Keine Versorgung",
	PrefixOpSupply + "Nicht erhoben",
	PrefixOpSupply + "Sonstige",
	PrefixAcquisition + "Plötzlich",
	PrefixAcquisition + "Progredient",
	PrefixAcquisition + "unknown",
	PrefixDisorder + "Cochleär",
	PrefixDisorder + "Nicht erhoben",
	PrefixDisorder + "Schallleitung",
	PrefixDisorder + "Sonstige",
}

// NumFeatures is the width of a preprocessed vector.
var NumFeatures = len(ExpectedFeatures)

// FeatureNames returns a copy of the expected feature names.
func FeatureNames() []string {
	out := make([]string, len(ExpectedFeatures))
	copy(out, ExpectedFeatures)
	return out
}

// FeatureIndex returns the position of name in the vector, or -1.
func FeatureIndex(name string) int {
	for i, f := range ExpectedFeatures {
		if f == name {
			return i
		}
	}
	return -1
}

// columnsWithPrefix returns the indexes of all columns in a one-hot group.
func columnsWithPrefix(prefix string) []int {
	var idx []int
	for i, f := range ExpectedFeatures {
		if strings.HasPrefix(f, prefix) {
			idx = append(idx, i)
		}
	}
	return idx
}
