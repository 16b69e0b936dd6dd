package leadads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFieldsKnownNames(t *testing.T) {
	mapped := MapFields([]FieldValue{
		{Name: "Full_Name", Values: []string{"Ola Nordmann"}},
		{Name: "email", Values: []string{"Ola@Example.NO"}},
		{Name: "phone_number", Values: []string{"912 34 567"}},
		{Name: "which_car", Values: []string{"Tesla Model Y"}},
	}, "NO")

	require.NotNil(t, mapped.CustomerName)
	assert.Equal(t, "Ola Nordmann", *mapped.CustomerName)
	assert.Equal(t, "ola@example.no", *mapped.CustomerEmail)
	assert.Equal(t, "+4791234567", *mapped.CustomerPhone)
	assert.Equal(t, "Tesla Model Y", *mapped.VehicleInterest)
	assert.Nil(t, mapped.InitialMessage)
}

func TestMapFieldsFoldsCustomQuestions(t *testing.T) {
	mapped := MapFields([]FieldValue{
		{Name: "name", Values: []string{"Kari"}},
		{Name: "when_to_buy", Values: []string{"within a month"}},
		{Name: "trade_in", Values: []string{"yes", "maybe"}},
		{Name: "comments", Values: []string{"  "}},
		{Name: "budget", Values: nil},
	}, "NO")

	require.NotNil(t, mapped.InitialMessage)
	assert.Equal(t, "when_to_buy: within a month\ntrade_in: yes", *mapped.InitialMessage)
	assert.Nil(t, mapped.CustomerEmail)
	assert.Nil(t, mapped.CustomerPhone)
}

func TestMapFieldsKeepsUnparseablePhone(t *testing.T) {
	mapped := MapFields([]FieldValue{{Name: "mobile", Values: []string{"call me"}}}, "NO")
	require.NotNil(t, mapped.CustomerPhone)
	assert.Equal(t, "call me", *mapped.CustomerPhone)
}

func TestMapFieldsDropsInvalidEmail(t *testing.T) {
	mapped := MapFields([]FieldValue{
		{Name: "full_name", Values: []string{"Ola Nordmann"}},
		{Name: "email", Values: []string{"ola@example"}},
	}, "NO")

	assert.Nil(t, mapped.CustomerEmail)
	require.NotNil(t, mapped.InitialMessage)
	assert.Equal(t, "email: ola@example", *mapped.InitialMessage)
}
