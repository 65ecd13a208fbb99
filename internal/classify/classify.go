// Package classify assigns a planning document type from its filename or, failing
// that, from keyword counts in its extracted text.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Document types.
const (
	TypeTransportAssessment  = "transport_assessment"
	TypeTravelPlan           = "travel_plan"
	TypeDesignAccess         = "design_and_access_statement"
	TypePlanningStatement    = "planning_statement"
	TypeSitePlan             = "site_plan"
	TypeDrawing              = "drawing"
	TypeDecisionNotice       = "decision_notice"
	TypeOfficerReport        = "officer_report"
	TypeConsultationResponse = "consultation_response"
	TypeOther                = "other"
)

// Confidence levels and methods.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	MethodFilename = "filename"
	MethodContent  = "content"
	MethodFallback = "fallback"
)

// Result is the outcome of classifying one document.
type Result struct {
	Type           string `json:"type"`
	Confidence     string `json:"confidence"`
	Method         string `json:"method"`
	MatchedPattern string `json:"matched_pattern,omitempty"`
}

// FilenameRule maps a filename pattern to a type.
type FilenameRule struct {
	Pattern *regexp.Regexp
	Type    string
}

// KeywordSet lists the content keywords for a type and the minimum total number of
// occurrences needed before the type qualifies.
type KeywordSet struct {
	Type       string
	Keywords   []string
	MinMatches int
}

// Classifier runs the filename phase, then the content phase. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	rules    []FilenameRule
	keywords []KeywordSet
}

// New creates a classifier. Rule and keyword-set order is significant: the first
// matching filename rule wins, and content ties go to the earlier keyword set.
func New(rules []FilenameRule, keywords []KeywordSet) *Classifier {
	return &Classifier{rules: rules, keywords: keywords}
}

// Default returns a classifier with the built-in planning rules.
func Default() *Classifier {
	return New(defaultFilenameRules, defaultKeywordSets)
}

// Classify returns the document type for filename, consulting content only when no
// filename rule matches. content may be empty.
func (c *Classifier) Classify(filename, content string) Result {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(filename) {
			return Result{
				Type:           rule.Type,
				Confidence:     ConfidenceHigh,
				Method:         MethodFilename,
				MatchedPattern: rule.Pattern.String(),
			}
		}
	}
	if strings.TrimSpace(content) != "" {
		if t, ok := c.classifyContent(content); ok {
			return Result{Type: t, Confidence: ConfidenceMedium, Method: MethodContent}
		}
	}
	return Result{Type: TypeOther, Confidence: ConfidenceLow, Method: MethodFallback}
}

func (c *Classifier) classifyContent(content string) (string, bool) {
	lower := strings.ToLower(content)
	best, bestCount := "", 0
	for _, set := range c.keywords {
		count := 0
		for _, kw := range set.Keywords {
			count += strings.Count(lower, strings.ToLower(kw))
		}
		if count < set.MinMatches || count == 0 {
			continue
		}
		// strict > keeps the first-declared type on ties
		if count > bestCount {
			best, bestCount = set.Type, count
		}
	}
	return best, best != ""
}

// Types returns every known document type in declaration order.
func Types() []string {
	return []string{
		TypeTransportAssessment, TypeTravelPlan, TypeDesignAccess, TypePlanningStatement,
		TypeSitePlan, TypeDrawing, TypeDecisionNotice, TypeOfficerReport,
		TypeConsultationResponse, TypeOther,
	}
}

// ParseType validates a caller-supplied document type (case-insensitive).
func ParseType(s string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types() {
		if t == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}
