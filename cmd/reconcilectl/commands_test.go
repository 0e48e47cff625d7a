package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/contact/store"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/logger"
)

type cliHarness struct {
	t       *testing.T
	backend *store.Backend
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	color.NoColor = true
	backend, err := store.Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory}, 0)
	require.NoError(t, err)
	return &cliHarness{t: t, backend: backend}
}

func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	a := newApp(config.Server{}, logger.Discard(), &out)
	a.open = func(context.Context) (*store.Backend, error) { return h.backend, nil }

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type wireEnvelope struct {
	Contact wireContact `json:"contact"`
}

func TestIdentifyCommand(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("identify", "--email", "doc@hillvalley.edu", "--phone", "555")
	require.NoError(t, err)

	out, err := h.run("--json", "identify", "--email", "emmett@hillvalley.edu", "--phone", "555")
	require.NoError(t, err)

	var got wireEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, int64(1), got.Contact.PrimaryContactID)
	assert.Equal(t, []string{"doc@hillvalley.edu", "emmett@hillvalley.edu"}, got.Contact.Emails)
	assert.Equal(t, []string{"555"}, got.Contact.PhoneNumbers)
	assert.Equal(t, []int64{2}, got.Contact.SecondaryContactIDs)
}

func TestShowCommand(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run("identify", "--email", "doc@hillvalley.edu", "--phone", "555")
	require.NoError(t, err)
	_, err = h.run("identify", "--email", "emmett@hillvalley.edu", "--phone", "555")
	require.NoError(t, err)

	out, err := h.run("show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "primary      1")
	assert.Contains(t, out, "doc@hillvalley.edu, emmett@hillvalley.edu")
	assert.Contains(t, out, "secondaries  2")

	_, err = h.run("show", "42")
	assert.ErrorContains(t, err, "not_found")

	_, err = h.run("show", "zero")
	assert.ErrorContains(t, err, "positive integer")
}

func TestTombstoneCommand(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run("identify", "--email", "biff@hillvalley.edu")
	require.NoError(t, err)

	out, err := h.run("tombstone", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "tombstoned contact 1")

	_, err = h.run("tombstone", "1")
	assert.ErrorContains(t, err, "not live")

	out, err = h.run("--json", "identify", "--email", "biff@hillvalley.edu")
	require.NoError(t, err)
	var got wireEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, int64(2), got.Contact.PrimaryContactID, "a tombstoned contact is never matched")
}

func TestMigrateCommandOnMemory(t *testing.T) {
	h := newCLIHarness(t)
	out, err := h.run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (memory)")
}
