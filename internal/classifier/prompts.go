package classifier

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

const (
	spamSystemPrompt    = "You are an email spam detection system. Analyze emails and determine if they are spam."
	projectSystemPrompt = "You are an expert email routing system. Analyze emails and determine which project they belong to based on project descriptions, keywords, client names, and email content. Always respond with valid JSON only."
)

const spamIndicators = `You are an expert email spam detection system. Analyze the following email carefully and determine if it is spam, possible spam, or legitimate email.

Consider these spam indicators:
- Suspicious sender addresses or domains
- Urgent language asking for personal information or money
- Poor grammar and spelling errors
- Suspicious links or attachments
- Unusual requests or offers that seem too good to be true
- Phishing attempts (asking for passwords, account details)
- Promotional content from unknown senders
- Generic greetings ("Dear Customer" instead of your name)
- Threats or urgency ("Your account will be closed")
- Requests for immediate action

Email content:
%s

Analyze this email and respond ONLY with valid JSON in this exact format (no markdown, no code blocks, just the JSON):
`

const spamResponseFormat = `{
  "isSpam": true or false,
  "confidence": a number between 0.0 and 1.0,
  "reason": explain why you classified it this way
}

Respond with ONLY the JSON object, nothing else.`

const spamResponseFormatWithRules = `{
  "isSpam": true or false,
  "confidence": a number between 0.0 and 1.0,
  "reason": "a brief explanation of your classification"
}

Classification rules:
- isSpam: true if clearly spam, false if legitimate or uncertain
- confidence: 0.9-1.0 for obvious spam, 0.7-0.89 for likely spam, 0.4-0.69 for possible spam, 0.0-0.39 for legitimate
- reason: explain why you classified it this way

Respond with ONLY the JSON object, nothing else.`

const projectTemplate = `You are an expert email routing system. Analyze the following email and determine which project it belongs to based on the project descriptions, keywords, and email content.

Available projects:
%s

Email content:
%s

Analysis guidelines:
- Match email content (subject, body, sender domain) to project descriptions and keywords
- Consider client names, project names, and domain names mentioned in projects
- Look for keywords from the project's keyword list in the email
- Consider the context and purpose of the email
- If the email clearly matches a project with high confidence (0.7+), assign it
- If there's a moderate match (0.5-0.69), you can still assign but with lower confidence
- Only set projectId to null if there's no clear match (confidence < 0.5)

Respond ONLY with valid JSON in this exact format (no markdown, no code blocks, just the JSON):
{
  "projectId": "exact-project-id-from-list-above or null",
  "confidence": a number between 0.0 and 1.0,
  "reason": "a brief explanation of why you assigned it to this project or why it's null"
}

Important: Use the EXACT Project ID from the list above. Do not invent IDs.`

const combinedTemplate = `Analyze this email and classify it in ONE step:

1. SPAM CLASSIFICATION: Determine if it's spam, possible spam, or legitimate
   - "spam": Clear spam (phishing, scams, obvious junk)
   - "possible_spam": Suspicious but uncertain (needs manual review)
   - "not_spam": Legitimate email

2. PROJECT CLASSIFICATION: If not_spam, determine which project it belongs to

Available projects:
%s

Email content:
%s

Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "spamCategory": "spam" | "possible_spam" | "not_spam",
  "spamConfidence": 0.0-1.0,
  "spamReason": "brief explanation",
  "projectId": "exact-project-id-from-list or null",
  "projectConfidence": 0.0-1.0,
  "projectReason": "brief explanation"
}

Rules:
- If spamCategory is "spam" → set projectId to null (skip project classification)
- If spamCategory is "possible_spam" → set projectId to null (needs manual review)
- If spamCategory is "not_spam" → classify project (only if confidence >= 0.5)`

// Prompt character budgets for embedded email content
const (
	SingleCallContentLimit = 3000
	CombinedContentLimit   = 2000
)

// BuildSpamPrompt renders the spam prompt. withRules adds the explicit confidence bands
// used by backends without a three-way category.
func BuildSpamPrompt(content string, withRules bool) string {
	format := spamResponseFormat
	if withRules {
		format = spamResponseFormatWithRules
	}
	return fmt.Sprintf(spamIndicators, content) + format
}

// BuildProjectPrompt renders the project routing prompt
func BuildProjectPrompt(content string, projects []core.ProjectDescriptor) string {
	return fmt.Sprintf(projectTemplate, RenderProjects(projects), content)
}

// BuildCombinedPrompt renders the single-call spam and project prompt
func BuildCombinedPrompt(content string, projects []core.ProjectDescriptor) string {
	return fmt.Sprintf(combinedTemplate, RenderProjects(projects), content)
}

// RenderProjects renders one block per project separated by blank lines
func RenderProjects(projects []core.ProjectDescriptor) string {
	blocks := make([]string, 0, len(projects))
	for _, p := range projects {
		keywords := "None"
		if len(p.Keywords) > 0 {
			keywords = strings.Join(p.Keywords, ", ")
		}
		blocks = append(blocks, fmt.Sprintf("Project ID: %s\nName: %s\nDescription: %s\nKeywords: %s",
			p.ID, p.Name, p.Description, keywords))
	}
	return strings.Join(blocks, "\n\n")
}
