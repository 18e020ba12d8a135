package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/giorgio/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ciao", body["message"])
		assert.Equal(t, "t1", body["threadId"])
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "Ciao!", "threadId": "t1"})
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL+"/", "tok").Chat(context.Background(), "ciao", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", reply.Reply)
	assert.Equal(t, "t1", reply.ThreadID)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Conversazione non trovata"})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "tok")

	out, err := c.DeleteConversation(context.Background(), "t9")
	require.NoError(t, err)
	assert.Equal(t, &Outcome{Success: false, Message: "Conversazione non trovata"}, out)

	_, err = c.Conversation(context.Background(), "t9")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
