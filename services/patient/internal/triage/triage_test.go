package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

func TestRuleClassifierRanksMatches(t *testing.T) {
	c := NewRuleClassifier()
	findings, err := c.Classify(context.Background(), Request{
		Symptoms: []string{" Shortness of Breath", "wheezing", "thirst", "dry mouth"},
		Vitals:   Vitals{HeartRate: 120, OxygenLevel: 91},
	})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	require.Equal(t, "respiratory distress", findings[0].Condition)
	require.Equal(t, domain.SeverityHigh, findings[0].Severity)
	require.InDelta(t, 0.8, findings[0].Score, 1e-9)
	require.Equal(t, "dehydration", findings[1].Condition)
	require.InDelta(t, 0.75, findings[1].Score, 1e-9)
	require.NotEmpty(t, findings[1].Recommendations)
}

func TestRuleClassifierNeedsMoreThanHalf(t *testing.T) {
	c := NewRuleClassifier()
	// 2 of 4 hypertension checks is exactly one half.
	findings, err := c.Classify(context.Background(), Request{
		Symptoms: []string{"headache", "dizziness"},
		Vitals:   Vitals{BloodPressure: "120/80"},
	})
	require.NoError(t, err)
	require.Empty(t, findings)

	findings, err = c.Classify(context.Background(), Request{
		Symptoms: []string{"headache", "dizziness"},
		Vitals:   Vitals{BloodPressure: "150/85"},
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, "hypertension", findings[0].Condition)
}

func TestRuleClassifierRejectsEmptyAndMalformed(t *testing.T) {
	c := NewRuleClassifier()
	_, err := c.Classify(context.Background(), Request{})
	require.True(t, apperr.Is(err, apperr.Validation))

	_, err = c.Classify(context.Background(), Request{Vitals: Vitals{BloodPressure: "high"}})
	require.True(t, apperr.Is(err, apperr.Validation))
}

func TestParseBloodPressure(t *testing.T) {
	sys, dia, err := ParseBloodPressure(" 135 / 88 ")
	require.NoError(t, err)
	require.Equal(t, 135, sys)
	require.Equal(t, 88, dia)

	for _, bad := range []string{"", "120", "120/", "/80", "0/80", "abc/def"} {
		_, _, err := ParseBloodPressure(bad)
		require.Errorf(t, err, "input %q", bad)
	}
}
