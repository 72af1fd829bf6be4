// Package testutil provides common fixtures for ScriptCord tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/store"
)

// Guild is a seeded guild with one text channel, one member and three roles
// named A, B and C.
type Guild struct {
	Guild   *platform.Guild
	Channel *platform.Channel
	Member  *platform.User
	Roles   []*platform.Role
}

// SeedGuild adds the standard test guild to client: guild 100, channel 200
// "general", member 300 "alice" and roles 500-502.
func SeedGuild(client *platform.MockClient) Guild {
	g := Guild{
		Guild:   &platform.Guild{ID: "100", Name: "Guild"},
		Channel: &platform.Channel{ID: "200", GuildID: "100", Name: "general"},
		Member:  &platform.User{ID: "300", Name: "alice", GuildID: "100"},
		Roles: []*platform.Role{
			{ID: "500", GuildID: "100", Name: "A"},
			{ID: "501", GuildID: "100", Name: "B"},
			{ID: "502", GuildID: "100", Name: "C"},
		},
	}
	client.AddGuild(g.Guild)
	client.AddChannel(g.Channel)
	client.AddUser(g.Member)
	for _, r := range g.Roles {
		client.AddRole(r)
	}
	return g
}

// NewState opens a JSON file state in a temporary directory, closed when the
// test ends.
func NewState(t *testing.T) *store.State {
	t.Helper()
	backend, err := store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultStateFile))
	require.NoError(t, err)
	state := store.NewState(backend)
	t.Cleanup(func() { _ = state.Close() })
	return state
}

// AssertJSONResponse decodes an API envelope and checks its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response), "failed to decode JSON response")
	require.Equal(t, expectedStatus, response["status"], "unexpected status field")
	return response
}
