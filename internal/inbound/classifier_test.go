package inbound

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inquiry = Message{
	FromEmail: "ola@kunde.no",
	FromName:  "Ola Nordmann",
	ToEmail:   "leads@inbound.dealerdesk.no",
	Subject:   "Prøvekjøring ID.4",
	BodyText:  "Hei! Jeg vil gjerne prøvekjøre ID.4 snarest. Ring meg på 912 34 567.",
}

func TestClassifyParsesFencedJSON(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: "```json\n{\"classification\": \"Sales_Inquiry\", \"confidence\": 0.93, \"reasoning\": \"Asks for a test drive\"}\n```"}}}

	got := NewClassifier(gen).Classify(context.Background(), inquiry)

	assert.Equal(t, Classification{Label: LabelSalesInquiry, Confidence: 0.93, Reasoning: "Asks for a test drive"}, got)
	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].Prompt, "To: leads@inbound.dealerdesk.no")
	assert.Contains(t, gen.requests[0].Prompt, "Subject: Prøvekjøring ID.4")
	assert.Equal(t, int32(classifyMaxTokens), gen.requests[0].MaxTokens)
}

func TestClassifyFallsBackToUncertain(t *testing.T) {
	cases := []struct {
		name   string
		reply  reply
		reason string
	}{
		{name: "generator error", reply: reply{err: errors.New("upstream 503")}, reason: "AI classification failed: upstream 503"},
		{name: "prose", reply: reply{text: "I think this is a sales inquiry."}, reason: "AI classification failed"},
		{name: "unknown label", reply: reply{text: `{"classification": "newsletter", "confidence": 0.8, "reasoning": "x"}`}, reason: `AI returned unknown classification "newsletter"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewClassifier(&scriptedGenerator{replies: []reply{tc.reply}}).Classify(context.Background(), inquiry)
			assert.Equal(t, LabelUncertain, got.Label)
			assert.Zero(t, got.Confidence)
			assert.Contains(t, got.Reasoning, tc.reason)
		})
	}
}

func TestClassifyClampsConfidence(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"classification": "other", "confidence": 7, "reasoning": "vendor"}`}}}
	got := NewClassifier(gen).Classify(context.Background(), inquiry)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassifyUsesHTMLWhenNoText(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"classification": "other", "confidence": 0.5, "reasoning": "x"}`}}}
	msg := Message{FromEmail: "a@b.no", BodyHTML: "<p>Hei <b>der</b></p>"}

	NewClassifier(gen).Classify(context.Background(), msg)

	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].Prompt, "Hei der")
	assert.Contains(t, gen.requests[0].Prompt, "Subject: (no subject)")
}

func TestExtractNormalizesModelOutput(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `Here you go:
{"customer_name": "Ola Nordmann", "email": null, "phone": "912 34 567", "car_interest": "VW ID.4",
 "inquiry_summary": "Wants a test drive soon", "urgency": "HIGH", "source": "null"}`}}}

	got := NewExtractor(gen, "NO").Extract(context.Background(), inquiry)

	assert.Equal(t, strPtr("Ola Nordmann"), got.CustomerName)
	assert.Equal(t, strPtr("ola@kunde.no"), got.Email)
	assert.Equal(t, strPtr("+4791234567"), got.Phone)
	assert.Equal(t, strPtr("VW ID.4"), got.CarInterest)
	assert.Equal(t, UrgencyHigh, got.Urgency)
	assert.Nil(t, got.Source)
	assert.Equal(t, 70, got.Score())
}

func TestExtractDropsEmailsTheStoreWouldReject(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"customer_name": "Ola", "email": "ola@example", "urgency": "low"}`}}}
	got := NewExtractor(gen, "NO").Extract(context.Background(), inquiry)
	assert.Equal(t, strPtr("ola@kunde.no"), got.Email)

	relayed := inquiry
	relayed.FromEmail = "noreply@localhost"
	gen = &scriptedGenerator{replies: []reply{{text: `{"customer_name": "Ola", "email": "not an email", "urgency": "low"}`}}}
	got = NewExtractor(gen, "NO").Extract(context.Background(), relayed)
	assert.Nil(t, got.Email)

	fallback := NewExtractor(&scriptedGenerator{replies: []reply{{text: "sorry"}}}, "NO").Extract(context.Background(), relayed)
	assert.Nil(t, fallback.Email)
}

func TestExtractFallsBackToEnvelope(t *testing.T) {
	got := NewExtractor(&scriptedGenerator{replies: []reply{{text: "sorry"}}}, "NO").Extract(context.Background(), inquiry)

	assert.Equal(t, strPtr("Ola Nordmann"), got.CustomerName)
	assert.Equal(t, strPtr("ola@kunde.no"), got.Email)
	assert.Equal(t, strPtr("Prøvekjøring ID.4"), got.InquirySummary)
	assert.Equal(t, UrgencyMedium, got.Urgency)
	assert.Equal(t, strPtr("email"), got.Source)
	assert.Nil(t, got.CarInterest)
	assert.Equal(t, 60, got.Score())

	noSubject := NewExtractor(&scriptedGenerator{}, "NO").Extract(context.Background(), Message{FromEmail: "x@y.no"})
	assert.Equal(t, strPtr("Email inquiry"), noSubject.InquirySummary)
	assert.Nil(t, noSubject.CustomerName)
}

func TestExtractionScore(t *testing.T) {
	assert.Equal(t, 70, Extraction{Urgency: UrgencyHigh}.Score())
	assert.Equal(t, 60, Extraction{Urgency: UrgencyMedium}.Score())
	assert.Equal(t, 50, Extraction{Urgency: UrgencyLow}.Score())
	assert.Equal(t, 50, Extraction{}.Score())
}
