package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyPostsToWebapp(t *testing.T) {
	var received Notification
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewWebappNotifier(ts.URL + "/")
	n.Notify(context.Background(), Notification{
		JobID:      7,
		Scope:      "c0ffee00-0000-0000-0000-000000000000",
		ConfigType: "SYNC",
		Status:     "CANCELLED",
		Reason:     "zombie job was cancelled",
	})

	assert.Equal(t, "/api/v1/notifications", path)
	assert.Equal(t, int64(7), received.JobID)
	assert.Equal(t, "zombie job was cancelled", received.Reason)
}

func TestNotifyWithoutWebappURLIsLogOnly(t *testing.T) {
	n := NewWebappNotifier("")
	// must not panic or block
	n.Notify(context.Background(), Notification{JobID: 1, Status: "FAILED"})
}
