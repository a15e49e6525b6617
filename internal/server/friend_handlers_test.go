package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchUsers(t *testing.T) {
	app, _ := newTestApp(t)
	tokenA := login(t, app, "u1", "alice")
	login(t, app, "u2", "bob")

	status, body := doJSON(t, app, "GET", "/api/users/search?username=bob", tokenA, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u2", body["uid"])

	status, _ = doJSON(t, app, "GET", "/api/users/search?username=alice", tokenA, nil)
	assert.Equal(t, http.StatusNotFound, status, "own profile is never a hit")

	status, _ = doJSON(t, app, "GET", "/api/users/search?username=nobody", tokenA, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFriendRequestLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	tokenA := login(t, app, "u1", "alice")
	tokenB := login(t, app, "u2", "bob")

	befriendViaAPI(t, app, tokenA, tokenB, "u2")

	status, body := doJSON(t, app, "GET", "/api/friends/", tokenA, nil)
	require.Equal(t, http.StatusOK, status)
	friends, _ := body["friends"].([]any)
	require.Len(t, friends, 1)
	profile, _ := friends[0].(map[string]any)
	assert.Equal(t, "bob", profile["username"])
	assert.Equal(t, true, profile["online"], "friend profiles carry presence")
}

func TestSelfFriendRequestConflicts(t *testing.T) {
	app, _ := newTestApp(t)
	token := login(t, app, "u1", "alice")

	status, body := doJSON(t, app, "POST", "/api/friends/requests", token, map[string]any{"to": "u1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SELF_REQUEST", body["code"])
}

func TestRejectFriendRequestLeavesNoEdge(t *testing.T) {
	app, _ := newTestApp(t)
	tokenA := login(t, app, "u1", "alice")
	tokenB := login(t, app, "u2", "bob")

	status, body := doJSON(t, app, "POST", "/api/friends/requests", tokenA, map[string]any{"to": "u2"})
	require.Equal(t, http.StatusCreated, status)
	reqID, _ := body["id"].(string)

	status, _ = doJSON(t, app, "POST", "/api/friends/requests/"+reqID+"/reject", tokenB, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = doJSON(t, app, "GET", "/api/friends/", tokenB, nil)
	require.Equal(t, http.StatusOK, status)
	friends, _ := body["friends"].([]any)
	assert.Empty(t, friends)
}

func TestCreateGroupEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	token := login(t, app, "u1", "alice")
	login(t, app, "u2", "bob")

	status, body := doJSON(t, app, "POST", "/api/groups/", token, map[string]any{
		"name":    "crew",
		"members": []string{"u2"},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "crew", body["name"])
	members, _ := body["members"].([]any)
	assert.Equal(t, []any{"u1", "u2"}, members)

	status, _ = doJSON(t, app, "POST", "/api/groups/", token, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}
