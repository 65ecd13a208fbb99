package classify

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_filenameWinsOverContent(t *testing.T) {
	c := Default()
	content := strings.Repeat("decision notice permission is hereby granted ", 10)
	got := c.Classify("Transport_Assessment.pdf", content)
	assert.Equal(t, TypeTransportAssessment, got.Type)
	assert.Equal(t, ConfidenceHigh, got.Confidence)
	assert.Equal(t, MethodFilename, got.Method)
	assert.NotEmpty(t, got.MatchedPattern)
}

func TestClassify_filenameVariants(t *testing.T) {
	c := Default()
	tests := []struct {
		filename string
		want     string
	}{
		{"Transport_Assessment.pdf", TypeTransportAssessment},
		{"25-01178-REM transport statement.pdf", TypeTransportAssessment},
		{"Framework Travel Plan v2.pdf", TypeTravelPlan},
		{"Design_and_Access_Statement.pdf", TypeDesignAccess},
		{"Design & Access.pdf", TypeDesignAccess},
		{"REM_DAS_Part1.pdf", TypeDesignAccess},
		{"Planning-Statement.docx", TypePlanningStatement},
		{"Decision Notice.pdf", TypeDecisionNotice},
		{"Delegated_Report.pdf", TypeOfficerReport},
		{"OCC Highways Consultation.pdf", TypeConsultationResponse},
		{"Site_Location_Plan.pdf", TypeSitePlan},
		{"Proposed Elevations.pdf", TypeDrawing},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.filename, "").Type)
		})
	}
}

func TestClassify_contentPhase(t *testing.T) {
	c := Default()
	content := "The junction capacity and highway impact were modelled. Traffic flows, " +
		"cycle routes and pedestrian crossings are considered. Trip generation is low."
	got := c.Classify("document_0042.pdf", content)
	assert.Equal(t, TypeTransportAssessment, got.Type)
	assert.Equal(t, ConfidenceMedium, got.Confidence)
	assert.Equal(t, MethodContent, got.Method)
	assert.Empty(t, got.MatchedPattern)
}

func TestClassify_contentBelowMinimum(t *testing.T) {
	c := Default()
	got := c.Classify("document_0042.pdf", "One junction and one cycle stand.")
	assert.Equal(t, TypeOther, got.Type)
	assert.Equal(t, ConfidenceLow, got.Confidence)
	assert.Equal(t, MethodFallback, got.Method)
}

func TestClassify_noFilenameNoContent(t *testing.T) {
	got := Default().Classify("scan_001.pdf", "")
	assert.Equal(t, Result{Type: TypeOther, Confidence: ConfidenceLow, Method: MethodFallback}, got)
}

func TestClassify_contentIsCaseInsensitive(t *testing.T) {
	c := New(nil, []KeywordSet{{Type: "alpha", Keywords: []string{"Bridge"}, MinMatches: 2}})
	assert.Equal(t, "alpha", c.Classify("x", "BRIDGE bridge").Type)
}

func TestClassify_highestCountWinsAndTiesGoFirst(t *testing.T) {
	sets := []KeywordSet{
		{Type: "first", Keywords: []string{"apple"}, MinMatches: 1},
		{Type: "second", Keywords: []string{"pear"}, MinMatches: 1},
	}
	c := New(nil, sets)
	assert.Equal(t, "second", c.Classify("x", "apple pear pear").Type)
	assert.Equal(t, "first", c.Classify("x", "apple pear").Type)
}

func TestClassify_firstFilenameRuleWins(t *testing.T) {
	rules := []FilenameRule{
		{regexp.MustCompile(`(?i)plan`), "generic"},
		{regexp.MustCompile(`(?i)travel plan`), TypeTravelPlan},
	}
	got := New(rules, nil).Classify("Travel Plan.pdf", "")
	assert.Equal(t, "generic", got.Type)
}

func TestClassify_deterministic(t *testing.T) {
	c := Default()
	content := strings.Repeat("no objection consultee objection ", 3)
	first := c.Classify("resp.pdf", content)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("resp.pdf", content))
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType(" Transport_Assessment ")
	require.NoError(t, err)
	assert.Equal(t, TypeTransportAssessment, got)

	_, err = ParseType("brochure")
	assert.Error(t, err)
}
