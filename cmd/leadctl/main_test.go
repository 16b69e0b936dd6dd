package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "leadctl dev"))
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "status"},
		{"email", "reprocess"},
		{"lead", "respond"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRespondRequiresDealership(t *testing.T) {
	_, err := run("lead", "respond", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dealership")
}

func TestReprocessRequiresOneID(t *testing.T) {
	_, err := run("email", "reprocess", "--dealership", uuid.NewString())
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	id, tenant := uuid.New(), uuid.New()

	gotID, gotTenant, err := parseIDs(id.String(), tenant.String())
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, tenant, gotTenant)

	_, _, err = parseIDs("nope", tenant.String())
	assert.ErrorContains(t, err, "invalid id")

	_, _, err = parseIDs(id.String(), "")
	assert.ErrorContains(t, err, "invalid dealership id")
}
