// Package admin holds the CSV import and export logic shared by the batch
// upload routes and the hearctl command line tool.
package admin

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ColumnMapping maps normalized CSV headers to internal feature keys.
var ColumnMapping = map[string]string{
	"alter":                                 "age",
	"age":                                   "age",
	"geschlecht":                            "gender",
	"seiten":                                "implant_side",
	"primäre sprache":                       "primary_language",
	"weitere sprachen":                      "secondary_language",
	"deutsch sprachbarriere":                "german_barrier",
	"non-verbal":                            "non_verbal",
	"eltern m. schwerhörigkeit":             "parents_hearing_loss",
	"geschwister m. sh":                     "siblings_hearing_loss",
	"tinnitus":                              "tinnitus",
	"schwindel":                             "dizziness",
	"otorrhoe":                              "otorrhea",
	"kopfschmerzen":                         "headache",
	"geschmack":                             "taste",
	"bildgebung, präoperativ.typ":           "imaging_type",
	"bildgebung, präoperativ.befunde":       "imaging_findings",
	"objektive messungen.oae (teoae/dpoae)": "oae",
	"objektive messungen.ll":                "obj_ll",
	"objektive messungen.4000 hz":           "obj_4000hz",
	"hörminderung operiertes ohr":           "hearing_loss_op",
	"versorgung operiertes ohr":             "care_op_ear",
	"zeitpunkt des hörverlusts (op_ohr)":    "time_of_loss",
	"erwerbsart":                            "acquisition_type",
	"beginn der hörminderung (op-ohr)":      "onset_interval",
	"hochgradige hörminderung oder taubheit (op-ohr)": "duration_interval",
	"ursache":                       "cause",
	"art der hörstörung":            "disorder_type",
	"hörminderung gegenohr":         "hearing_loss_other_ear",
	"versorgung gegenohr":           "care_other_ear",
	"behandlung/op.ci implantation": "implant_details",
	"measure  pre-op":               "measure_preop",
	"abstand":                       "days_between",
}

// PipelineNames maps normalized headers to the German column names the
// trained pipeline expects. Batch uploads rename matching columns.
var PipelineNames = map[string]string{
	"alter":                         "Alter [J]",
	"age":                           "Alter [J]",
	"geschlecht":                    "Geschlecht",
	"primäre sprache":               "Primäre Sprache",
	"primaere sprache":              "Primäre Sprache",
	"tinnitus":                      "Symptome präoperativ.Tinnitus...",
	"beginn der hörminderung":       "Diagnose.Höranamnese.Beginn der Hörminderung (OP-Ohr)...",
	"ursache":                       "Diagnose.Höranamnese.Ursache....Ursache...",
	"behandlung/op.ci implantation": "Behandlung/OP.CI Implantation",
}

var intervalYears = map[string]float64{
	"< 1 y":   0.5,
	"1-2 y":   1.5,
	"2-5 y":   3.5,
	"5-10 y":  7.5,
	"10-20 y": 15,
	"> 20 y":  25,
}

var (
	trueWords  = map[string]bool{"ja": true, "yes": true, "vorhanden": true, "true": true, "1": true, "y": true}
	falseWords = map[string]bool{"nein": true, "no": true, "kein": true, "false": true, "0": true, "n": true}
	nullWords  = map[string]bool{"": true, "nan": true, "none": true}
)

// Row is one non-empty CSV data row. Index is the 0-based position among
// all data rows, empty ones included.
type Row struct {
	Index int
	Cells map[string]string
}

// Table is a parsed CSV file.
type Table struct {
	Headers []string
	Rows    []Row
}

// NormalizeHeader strips a byte order mark and surrounding blanks and lowers
// the case.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimLeft(h, "\ufeff")))
}

// FeatureKey returns the internal key for a header, or the header itself
// when it is not mapped.
func FeatureKey(header string) string {
	if key, ok := ColumnMapping[NormalizeHeader(header)]; ok {
		return key
	}
	return header
}

// PipelineName returns the pipeline column for a header, or the cleaned
// header when it is not mapped.
func PipelineName(header string) string {
	if name, ok := PipelineNames[NormalizeHeader(header)]; ok {
		return name
	}
	return strings.TrimSpace(strings.TrimLeft(header, "\ufeff"))
}

// ToBool parses German and English yes/no words. Unknown values yield nil.
func ToBool(s string) *bool {
	v := strings.ToLower(strings.TrimSpace(s))
	if nullWords[v] {
		return nil
	}
	switch {
	case trueWords[v]:
		b := true
		return &b
	case falseWords[v]:
		b := false
		return &b
	}
	return nil
}

// IntervalToYears maps interval labels such as "2-5 y" to approximate years
// and otherwise parses a number. Unknown values yield nil.
func IntervalToYears(s string) *float64 {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "nan", "nicht erhoben", "unbekannt", "unbekannt/ka":
		return nil
	}
	if years, ok := intervalYears[v]; ok {
		return &years
	}
	if f, ok := ParseNumber(v); ok {
		return &f
	}
	return nil
}

// ParseNumber parses a finite float.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ReadTable parses CSV with a header row. Rows whose cells are all blank are
// dropped but still advance the row index.
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty CSV: no header row")
		}
		return nil, err
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimLeft(headers[0], "\ufeff")
	}

	table := &Table{Headers: headers}
	for index := 0; ; index++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		cells := make(map[string]string, len(headers))
		for i, h := range headers {
			if i >= len(record) {
				break
			}
			v := strings.TrimSpace(record[i])
			if v == "" || strings.EqualFold(v, "nan") {
				continue
			}
			cells[h] = v
		}
		if len(cells) == 0 {
			continue
		}
		table.Rows = append(table.Rows, Row{Index: index, Cells: cells})
	}
	return table, nil
}

// UploadRecords turns a table into prediction inputs. Numeric cells become
// floats and mapped headers are renamed to pipeline columns.
func UploadRecords(t *Table) ([]map[string]interface{}, []int) {
	records := make([]map[string]interface{}, 0, len(t.Rows))
	index := make([]int, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]interface{}, len(row.Cells))
		for h, v := range row.Cells {
			if f, ok := ParseNumber(v); ok {
				rec[PipelineName(h)] = f
			} else {
				rec[PipelineName(h)] = v
			}
		}
		records = append(records, rec)
		index = append(index, row.Index)
	}
	return records, index
}

// PatientFeatures converts one row into stored patient features: numbers
// first, then interval labels for the interval columns, then yes/no words,
// then the raw string.
func PatientFeatures(row Row) map[string]interface{} {
	out := make(map[string]interface{}, len(row.Cells))
	for h, v := range row.Cells {
		key := FeatureKey(h)
		if f, ok := ParseNumber(v); ok {
			out[key] = f
			continue
		}
		if key == "onset_interval" || key == "duration_interval" {
			if years := IntervalToYears(v); years != nil {
				out[key] = *years
				continue
			}
		}
		if b := ToBool(v); b != nil {
			out[key] = *b
			continue
		}
		out[key] = v
	}
	return out
}
