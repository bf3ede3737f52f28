package classifier

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

const (
	reasonDefault        = "No reason provided"
	reasonParseFailed    = "Failed to parse AI response"
	reasonInvalidProject = "Invalid project ID returned by AI"
)

var (
	jsonFencePattern    = regexp.MustCompile("```json\\n?")
	fencePattern        = regexp.MustCompile("```\\n?")
	jsonObjectPattern   = regexp.MustCompile(`\{[\s\S]*\}`)
	numberPrefixPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

	errNoObject = errors.New("response does not contain a JSON object")
)

// Parser turns free-form model output into typed verdicts.
// It never returns an error: any failure yields a fallback verdict.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a new Parser
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseSpam parses a {"isSpam", "confidence", "reason"} response
func (p *Parser) ParseSpam(text string) core.SpamCheck {
	fields, err := decodeObject(text)
	if err != nil {
		p.logger.Warn("Failed to parse spam response", zap.Error(err), zap.String("response", text))
		return core.SpamCheck{IsSpam: false, Confidence: 0, Reason: reasonParseFailed}
	}

	return core.SpamCheck{
		IsSpam:     boolField(fields["isSpam"]),
		Confidence: confidenceField(fields["confidence"]),
		Reason:     reasonField(fields["reason"]),
	}
}

// ParseProject parses a {"projectId", "confidence", "reason"} response.
// A project id that is not in projects is rejected.
func (p *Parser) ParseProject(text string, projects []core.ProjectDescriptor) core.ProjectVerdict {
	fields, err := decodeObject(text)
	if err != nil {
		p.logger.Warn("Failed to parse project response", zap.Error(err), zap.String("response", text))
		return core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reasonParseFailed}
	}

	projectID := stringField(fields["projectId"])
	if projectID == nil {
		return core.ProjectVerdict{
			ProjectID:  nil,
			Confidence: confidenceField(fields["confidence"]),
			Reason:     reasonField(fields["reason"]),
		}
	}

	if !knownProject(projects, *projectID) {
		p.logInvalidProject(*projectID, projects)
		return core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reasonInvalidProject}
	}

	return core.ProjectVerdict{
		ProjectID:  projectID,
		Confidence: confidenceField(fields["confidence"]),
		Reason:     reasonField(fields["reason"]),
	}
}

// ParseCombined parses a single-call response carrying both spam and project fields
func (p *Parser) ParseCombined(text string, projects []core.ProjectDescriptor) core.CombinedVerdict {
	fields, err := decodeObject(text)
	if err != nil {
		p.logger.Warn("Failed to parse combined response", zap.Error(err), zap.String("response", text))
		reason := fmt.Sprintf("%s: %v", reasonParseFailed, err)
		return core.CombinedVerdict{
			Spam:    core.SpamVerdict{Category: core.CategoryNotSpam, Confidence: 0, Reason: reason},
			Project: core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reason},
		}
	}

	category := core.CategoryNotSpam
	if raw := stringField(fields["spamCategory"]); raw != nil {
		category = core.SpamCategory(strings.ToLower(strings.TrimSpace(*raw)))
		if !category.Valid() {
			p.logger.Warn("Unknown spam category returned by AI, treating as possible spam",
				zap.String("category", *raw))
			category = core.CategoryPossibleSpam
		}
	}

	verdict := core.CombinedVerdict{
		Spam: core.SpamVerdict{
			Category:   category,
			Confidence: confidenceField(fields["spamConfidence"]),
			Reason:     reasonField(fields["spamReason"]),
		},
		Project: core.ProjectVerdict{
			ProjectID:  stringField(fields["projectId"]),
			Confidence: confidenceField(fields["projectConfidence"]),
			Reason:     reasonField(fields["projectReason"]),
		},
	}

	if id := verdict.Project.ProjectID; id != nil && !knownProject(projects, *id) {
		p.logInvalidProject(*id, projects)
		verdict.Project = core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reasonInvalidProject}
	}

	return verdict.EnforceInvariant()
}

func (p *Parser) logInvalidProject(id string, projects []core.ProjectDescriptor) {
	available := make([]string, 0, len(projects))
	for _, project := range projects {
		available = append(available, project.ID)
	}
	p.logger.Warn("Invalid project ID returned by AI",
		zap.String("project_id", id),
		zap.String("available_projects", strings.Join(available, ", ")))
}

// ExtractJSON strips code fences and isolates the outermost {...} span
func ExtractJSON(text string) string {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = jsonFencePattern.ReplaceAllString(cleaned, "")
		cleaned = fencePattern.ReplaceAllString(cleaned, "")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = fencePattern.ReplaceAllString(cleaned, "")
	}

	if match := jsonObjectPattern.FindString(cleaned); match != "" {
		return match
	}
	return strings.TrimSpace(cleaned)
}

func decodeObject(text string) (map[string]json.RawMessage, error) {
	candidate := ExtractJSON(text)
	if candidate == "" {
		return nil, &core.ParseError{Err: errNoObject}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, &core.ParseError{Err: err}
	}
	if fields == nil {
		return nil, &core.ParseError{Err: errNoObject}
	}
	return fields, nil
}

func knownProject(projects []core.ProjectDescriptor, id string) bool {
	for _, project := range projects {
		if project.ID == id {
			return true
		}
	}
	return false
}

// boolField accepts true or "true"
func boolField(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "true"
	}
	return false
}

// confidenceField coerces a number or numeric string into [0, 1]. Anything else is 0.
func confidenceField(raw json.RawMessage) float64 {
	return clamp(numberField(raw))
}

func numberField(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return leadingNumber(s)
	}
	return 0
}

// leadingNumber parses the numeric prefix of s, so "0.85 (high)" yields 0.85
func leadingNumber(s string) float64 {
	s = strings.TrimSpace(s)
	match := numberPrefixPattern.FindString(s)
	if match == "" {
		if strings.HasPrefix(s, "Infinity") || strings.HasPrefix(s, "+Infinity") {
			return math.Inf(1)
		}
		if strings.HasPrefix(s, "-Infinity") {
			return math.Inf(-1)
		}
		return 0
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return f
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

// stringField returns nil for missing, null, empty or "null" values.
// Non-string scalars are kept in their JSON text form.
func stringField(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		text := strings.TrimSpace(string(raw))
		if text == "null" || text == "false" || text == "0" {
			return nil
		}
		s = text
	}
	if s == "" || s == "null" {
		return nil
	}
	return &s
}

func reasonField(raw json.RawMessage) string {
	if s := stringField(raw); s != nil {
		return *s
	}
	return reasonDefault
}
