package classify

import "regexp"

// sep matches the separators that appear between words in portal filenames.
const sep = `[\s_\-.]*`

var defaultFilenameRules = []FilenameRule{
	{regexp.MustCompile(`(?i)transport` + sep + `(assessment|statement)`), TypeTransportAssessment},
	{regexp.MustCompile(`(?i)travel` + sep + `plan`), TypeTravelPlan},
	{regexp.MustCompile(`(?i)design` + sep + `(and|&)?` + sep + `access`), TypeDesignAccess},
	{regexp.MustCompile(`(?i)(^|[\s_\-.])DAS([\s_\-.]|$)`), TypeDesignAccess},
	{regexp.MustCompile(`(?i)planning` + sep + `statement`), TypePlanningStatement},
	{regexp.MustCompile(`(?i)decision` + sep + `notice`), TypeDecisionNotice},
	{regexp.MustCompile(`(?i)(officer|delegated|committee)` + sep + `report`), TypeOfficerReport},
	{regexp.MustCompile(`(?i)consult(ation|ee)`), TypeConsultationResponse},
	{regexp.MustCompile(`(?i)site` + sep + `(layout|location|block)?` + sep + `plan`), TypeSitePlan},
	{regexp.MustCompile(`(?i)(drawing|elevation|floor` + sep + `plan|sections?([\s_\-.]|$))`), TypeDrawing},
}

var defaultKeywordSets = []KeywordSet{
	{
		Type: TypeTransportAssessment,
		Keywords: []string{
			"transport assessment", "trip generation", "junction", "highway",
			"traffic", "modal split", "cycle", "pedestrian", "vehicle movements",
		},
		MinMatches: 5,
	},
	{
		Type: TypeTravelPlan,
		Keywords: []string{
			"travel plan", "travel plan coordinator", "sustainable travel",
			"mode share", "car sharing", "monitoring survey",
		},
		MinMatches: 4,
	},
	{
		Type: TypeDesignAccess,
		Keywords: []string{
			"design and access", "accessibility", "layout", "scale",
			"appearance", "landscaping", "inclusive access",
		},
		MinMatches: 5,
	},
	{
		Type: TypePlanningStatement,
		Keywords: []string{
			"planning statement", "national planning policy framework", "nppf",
			"local plan", "policy", "material consideration",
		},
		MinMatches: 5,
	},
	{
		Type: TypeDecisionNotice,
		Keywords: []string{
			"decision notice", "permission is hereby granted", "subject to the following conditions",
			"reason for condition", "refused",
		},
		MinMatches: 2,
	},
	{
		Type: TypeOfficerReport,
		Keywords: []string{
			"officer recommendation", "recommendation:", "planning committee",
			"assessment of the proposal", "conclusion",
		},
		MinMatches: 3,
	},
	{
		Type: TypeConsultationResponse,
		Keywords: []string{
			"consultation response", "no objection", "objection", "consultee", "we recommend",
		},
		MinMatches: 3,
	},
}
