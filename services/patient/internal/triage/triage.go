// Package triage suggests likely conditions from reported symptoms and
// vital signs. The classifier is pluggable; RuleClassifier is the built-in
// threshold table.
package triage

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

// Vitals are the measurements a classifier may use. Zero means not measured.
type Vitals struct {
	BloodPressure string  `json:"bloodPressure,omitempty"`
	HeartRate     int     `json:"heartRate,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	OxygenLevel   float64 `json:"oxygenLevel,omitempty"`
}

type Request struct {
	Symptoms []string `json:"symptoms"`
	Vitals   Vitals   `json:"vitals"`
}

// Finding is one suggested condition. Score is the share of the rule's
// checks that matched.
type Finding struct {
	Condition       string          `json:"condition"`
	Severity        domain.Severity `json:"severity"`
	Score           float64         `json:"score"`
	Recommendations []string        `json:"recommendations"`
}

// Classifier ranks conditions, most likely first.
type Classifier interface {
	Classify(ctx context.Context, req Request) ([]Finding, error)
}

// ParseBloodPressure splits "systolic/diastolic".
func ParseBloodPressure(raw string) (systolic, diastolic int, err error) {
	sys, dia, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if ok {
		systolic, err = strconv.Atoi(strings.TrimSpace(sys))
		if err == nil {
			diastolic, err = strconv.Atoi(strings.TrimSpace(dia))
		}
	}
	if !ok || err != nil || systolic <= 0 || diastolic <= 0 {
		return 0, 0, apperr.New(apperr.Validation, "bloodPressure must look like 120/80").With("field", "bloodPressure")
	}
	return systolic, diastolic, nil
}

type vitalCheck func(v Vitals) bool

type rule struct {
	condition       string
	severity        domain.Severity
	symptoms        []string
	vitals          []vitalCheck
	recommendations []string
}

func highBloodPressure(v Vitals) bool {
	if v.BloodPressure == "" {
		return false
	}
	sys, dia, err := ParseBloodPressure(v.BloodPressure)
	return err == nil && (sys > 140 || dia > 90)
}

func fever(v Vitals) bool       { return v.Temperature > 38.5 }
func lowOxygen(v Vitals) bool   { return v.OxygenLevel > 0 && v.OxygenLevel < 95 }
func tachycardia(v Vitals) bool { return v.HeartRate > 100 }

var defaultRules = []rule{
	{
		condition: "hypertension",
		severity:  domain.SeverityHigh,
		symptoms:  []string{"headache", "dizziness", "chest pain"},
		vitals:    []vitalCheck{highBloodPressure},
		recommendations: []string{
			"Monitor blood pressure regularly",
			"Reduce salt intake",
			"Exercise regularly",
			"Take prescribed medications",
		},
	},
	{
		condition: "fever",
		severity:  domain.SeverityMedium,
		symptoms:  []string{"fever", "chills", "body aches"},
		vitals:    []vitalCheck{fever},
		recommendations: []string{
			"Rest and stay hydrated",
			"Take fever-reducing medication",
			"Monitor temperature regularly",
			"Seek medical attention if fever persists",
		},
	},
	{
		condition: "respiratory distress",
		severity:  domain.SeverityHigh,
		symptoms:  []string{"shortness of breath", "wheezing", "coughing"},
		vitals:    []vitalCheck{lowOxygen, tachycardia},
		recommendations: []string{
			"Use prescribed inhalers",
			"Practice breathing exercises",
			"Avoid triggers",
			"Seek emergency care if symptoms worsen",
		},
	},
	{
		condition: "dehydration",
		severity:  domain.SeverityMedium,
		symptoms:  []string{"thirst", "dry mouth", "fatigue"},
		vitals:    []vitalCheck{tachycardia},
		recommendations: []string{
			"Increase fluid intake",
			"Monitor urine output",
			"Rest in cool environment",
			"Seek medical attention if symptoms persist",
		},
	},
}

// RuleClassifier reports every rule whose match ratio exceeds Threshold.
type RuleClassifier struct {
	rules     []rule
	Threshold float64
}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{rules: defaultRules, Threshold: 0.5}
}

func (c *RuleClassifier) Classify(_ context.Context, req Request) ([]Finding, error) {
	reported := make(map[string]struct{}, len(req.Symptoms))
	for _, s := range req.Symptoms {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			reported[s] = struct{}{}
		}
	}
	if len(reported) == 0 && req.Vitals == (Vitals{}) {
		return nil, apperr.New(apperr.Validation, "symptoms or vitals are required")
	}
	if req.Vitals.BloodPressure != "" {
		if _, _, err := ParseBloodPressure(req.Vitals.BloodPressure); err != nil {
			return nil, err
		}
	}

	findings := []Finding{}
	for _, r := range c.rules {
		matched := 0
		for _, s := range r.symptoms {
			if _, ok := reported[s]; ok {
				matched++
			}
		}
		for _, check := range r.vitals {
			if check(req.Vitals) {
				matched++
			}
		}
		score := float64(matched) / float64(len(r.symptoms)+len(r.vitals))
		if score <= c.Threshold {
			continue
		}
		findings = append(findings, Finding{
			Condition:       r.condition,
			Severity:        r.severity,
			Score:           score,
			Recommendations: append([]string(nil), r.recommendations...),
		})
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Score != findings[j].Score {
			return findings[i].Score > findings[j].Score
		}
		return findings[i].Condition < findings[j].Condition
	})
	return findings, nil
}
