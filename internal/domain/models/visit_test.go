package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	for _, s := range []string{"completed", "partial", "no_access", "skipped"} {
		outcome, err := ParseOutcome(s)
		require.NoError(t, err)
		assert.True(t, outcome.Valid())
	}

	_, err := ParseOutcome("done")
	require.Error(t, err)
	_, err = ParseOutcome("")
	require.Error(t, err)
}

func TestParsePackaging(t *testing.T) {
	for _, s := range []string{"each", "case"} {
		p, err := ParsePackaging(s)
		require.NoError(t, err)
		assert.True(t, p.Valid())
	}

	_, err := ParsePackaging("box")
	require.Error(t, err)
}

func TestCoverageReportAllCovered(t *testing.T) {
	assert.False(t, CoverageReport{}.AllCovered(), "zero boxes is never covered")

	report := CoverageReport{Boxes: []BoxCoverage{
		{Label: "A", Covered: true},
		{Label: "B", Covered: false},
	}}
	assert.False(t, report.AllCovered())

	missing := report.Missing()
	require.Len(t, missing, 1)
	assert.Equal(t, "B", missing[0].Label)

	report.Boxes[1].Covered = true
	assert.True(t, report.AllCovered())
	assert.Empty(t, report.Missing())
}
