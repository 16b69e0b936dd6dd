package inbound

import (
	"context"
	"fmt"
	"strings"

	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/phone"
	"dealerdesk_backend/platform/sanitize"
)

const (
	classifyMaxTokens = 500
	extractMaxTokens  = 800
	maxPromptBody     = 8000
)

const classifySystemPrompt = `You triage emails forwarded to a car dealership. Answer with JSON only.`

const classifyPromptTemplate = `Analyze this email and classify it into one of these categories:

1. sales_inquiry: Customer is interested in buying, test driving, or learning more about a car
2. spam: Marketing emails, scams, irrelevant automated messages
3. other: Internal communication, vendor emails, general inquiries not related to car sales
4. uncertain: Cannot determine with confidence (needs human review)

Email to analyze:
%s

Respond ONLY with valid JSON in this exact format (no markdown, no extra text):
{
  "classification": "sales_inquiry|spam|other|uncertain",
  "confidence": 0.85,
  "reasoning": "Brief explanation of why this email was classified this way"
}`

const extractPromptTemplate = `Extract lead information from this sales inquiry email about cars.

Email:
%s

Extract the following information and respond ONLY with valid JSON (no markdown, no extra text):
{
  "customer_name": "Full name if mentioned, otherwise null",
  "email": "Email address (use from_email if not mentioned in body)",
  "phone": "Phone number if mentioned, otherwise null",
  "car_interest": "Which car model(s) they're interested in",
  "inquiry_summary": "Brief 1-2 sentence summary of what they want",
  "urgency": "high|medium|low (based on language like 'urgent', 'asap', 'when available')",
  "source": "toyota.no|volkswagen.no|direct_email|other (infer from email content or domain)"
}

If a field cannot be determined, use null. For email, use the sender's email address.`

// Classifier labels an email with the text generator.
type Classifier struct {
	gen textgen.Generator
}

func NewClassifier(gen textgen.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify never fails: generator errors, unparsable output and unknown
// labels all become "uncertain" so the email is left for human review.
func (c *Classifier) Classify(ctx context.Context, msg Message) Classification {
	resp, err := c.gen.Complete(ctx, textgen.Request{
		System:      classifySystemPrompt,
		Prompt:      fmt.Sprintf(classifyPromptTemplate, renderForPrompt(msg, true)),
		Temperature: 0,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return uncertain(fmt.Sprintf("AI classification failed: %v", err))
	}

	var out Classification
	if err := textgen.DecodeJSON(resp.Text, &out); err != nil {
		return uncertain(fmt.Sprintf("AI classification failed: %v", err))
	}

	out.Label = strings.ToLower(strings.TrimSpace(out.Label))
	switch out.Label {
	case LabelSalesInquiry, LabelSpam, LabelOther, LabelUncertain:
	default:
		return uncertain(fmt.Sprintf("AI returned unknown classification %q", out.Label))
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	return out
}

func uncertain(reason string) Classification {
	return Classification{Label: LabelUncertain, Confidence: 0, Reasoning: reason}
}

// Extractor pulls lead fields out of a sales inquiry.
type Extractor struct {
	gen    textgen.Generator
	region string
}

func NewExtractor(gen textgen.Generator, phoneRegion string) *Extractor {
	return &Extractor{gen: gen, region: phoneRegion}
}

// Extract returns the model's reading of msg. When the model fails the
// envelope data is used instead, with medium urgency.
func (x *Extractor) Extract(ctx context.Context, msg Message) Extraction {
	resp, err := x.gen.Complete(ctx, textgen.Request{
		System:      classifySystemPrompt,
		Prompt:      fmt.Sprintf(extractPromptTemplate, renderForPrompt(msg, false)),
		Temperature: 0,
		MaxTokens:   extractMaxTokens,
	})

	var out Extraction
	if err == nil {
		err = textgen.DecodeJSON(resp.Text, &out)
	}
	if err != nil {
		return fallbackExtraction(msg)
	}

	out.CustomerName = optionalPtr(out.CustomerName)
	out.Email = leads.ValidEmail(optionalPtr(out.Email))
	if out.Email == nil {
		out.Email = leads.ValidEmail(optional(msg.FromEmail))
	}
	out.CarInterest = optionalPtr(out.CarInterest)
	out.InquirySummary = optionalPtr(out.InquirySummary)
	out.Source = optionalPtr(out.Source)
	if out.Phone = optionalPtr(out.Phone); out.Phone != nil {
		out.Phone = optional(phone.NormalizeE164(*out.Phone, x.region))
	}
	out.Urgency = strings.ToLower(strings.TrimSpace(out.Urgency))
	return out
}

func fallbackExtraction(msg Message) Extraction {
	summary := msg.Subject
	if strings.TrimSpace(summary) == "" {
		summary = "Email inquiry"
	}
	source := "email"
	return Extraction{
		CustomerName:   optional(msg.FromName),
		Email:          leads.ValidEmail(optional(msg.FromEmail)),
		InquirySummary: &summary,
		Urgency:        UrgencyMedium,
		Source:         &source,
	}
}

func renderForPrompt(msg Message, withRecipient bool) string {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	body := msg.BodyText
	if body == "" && msg.BodyHTML != "" {
		body = sanitize.HTMLToText(msg.BodyHTML)
	}
	if body == "" {
		body = "(empty)"
	}
	if len(body) > maxPromptBody {
		body = strings.ToValidUTF8(body[:maxPromptBody], "")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\n", msg.FromName, msg.FromEmail)
	if withRecipient {
		fmt.Fprintf(&b, "To: %s\n", msg.ToEmail)
	}
	fmt.Fprintf(&b, "Subject: %s\n\nBody:\n%s", subject, body)
	return b.String()
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
