package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFillsPromptDefaults(t *testing.T) {
	gen := &stubGenerator{text: "  Takk!  "}
	reply := NewReplyGenerator(gen).Generate(context.Background(), ReplyInput{DealershipName: "Bilhuset Oslo"})

	assert.Equal(t, "Takk!", reply.Text)
	assert.False(t, reply.Fallback())
	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].Prompt, "Kunde: kunde")
	assert.Contains(t, gen.requests[0].Prompt, "Interessert i: Ikke spesifisert")
	assert.Contains(t, gen.requests[0].Prompt, "Melding: Henvendelse om bil")
	assert.NotContains(t, gen.requests[0].System, "kontaktinformasjon:")
}

func TestGenerateIncludesContactDetails(t *testing.T) {
	gen := &stubGenerator{text: "Takk!"}
	NewReplyGenerator(gen).Generate(context.Background(), ReplyInput{
		DealershipName:  "Bilhuset Oslo",
		DealershipPhone: "+4722334455",
		DealershipEmail: "post@bilhuset.no",
	})

	system := gen.requests[0].System
	assert.Contains(t, system, "- Telefon: +4722334455")
	assert.Contains(t, system, "- E-post: post@bilhuset.no")
	assert.Contains(t, system, "norsk (bokmål)")
}

func TestGenerateFallsBackOnFailureOrEmptyText(t *testing.T) {
	for name, gen := range map[string]*stubGenerator{
		"error": {err: errors.New("timeout")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			reply := NewReplyGenerator(gen).Generate(context.Background(), ReplyInput{DealershipName: "Bilhuset Oslo"})

			assert.True(t, reply.Fallback())
			assert.Error(t, reply.Err)
			assert.Equal(t, FallbackReply("Bilhuset Oslo"), reply.Text)
			assert.Contains(t, reply.Text, "innen 24 timer")
		})
	}
}
