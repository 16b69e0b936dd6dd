package leads

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func existingLead() Lead {
	return Lead{
		ID:              uuid.New(),
		CustomerName:    strPtr("Ola"),
		CustomerPhone:   strPtr("+4791234567"),
		VehicleInterest: strPtr("Tesla Model 3"),
		InitialMessage:  strPtr("Interested in a test drive"),
		SourceURL:       strPtr("https://bilhuset.no/kontakt"),
	}
}

func TestResubmitPolicyOverwritesFields(t *testing.T) {
	policy := ResubmitPolicy{}
	assert.Equal(t, 5*time.Minute, policy.Window())
	assert.Equal(t, 50, policy.Score())

	merged := policy.Merge(existingLead(), Submission{
		Name:    "Ola Nordmann",
		Email:   "ola@example.com",
		Message: "Can I come on Saturday?",
	})

	assert.Equal(t, "Ola Nordmann", *merged.CustomerName)
	assert.Equal(t, "Can I come on Saturday?", *merged.InitialMessage)
	assert.Nil(t, merged.CustomerPhone)
	assert.Nil(t, merged.VehicleInterest)
	assert.Nil(t, merged.SourceURL)
}

func TestAppendPolicyAppendsMessage(t *testing.T) {
	policy := AppendPolicy{}
	assert.Equal(t, 24*time.Hour, policy.Window())
	assert.Equal(t, 60, policy.Score())

	lead := existingLead()
	merged := policy.Merge(lead, Submission{Name: "Someone Else", Message: "Also the Model Y?"})

	assert.Equal(t, "Interested in a test drive\n\n---\nNy henvendelse:\nAlso the Model Y?", *merged.InitialMessage)
	assert.Equal(t, "Ola", *merged.CustomerName)
	assert.Equal(t, "https://bilhuset.no/kontakt", *merged.SourceURL)

	merged = policy.Merge(lead, Submission{Message: "x", SourceURL: strPtr("https://bilhuset.no/tilbud")})
	assert.Equal(t, "https://bilhuset.no/tilbud", *merged.SourceURL)
}

func TestNewDedupPolicy(t *testing.T) {
	p, err := NewDedupPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyResubmit, p.Name())

	p, err = NewDedupPolicy("append")
	require.NoError(t, err)
	assert.Equal(t, PolicyAppend, p.Name())

	_, err = NewDedupPolicy("merge-all")
	assert.Error(t, err)
}
