package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"permitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierSignsBody(t *testing.T) {
	var (
		gotBody      []byte
		gotSignature string
	)
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer relay.Close()

	msg := Message{
		ApplicationID: "a1",
		Purpose:       types.PurposeDownloadAccess,
		Recipient:     "asha@example.com",
		Code:          "123456",
		Reference:     "ABCD2345",
		ExpiresAt:     time.Date(2026, 3, 4, 11, 10, 0, 0, time.UTC),
	}

	n := NewWebhookNotifier(relay.URL, "relay-secret")
	require.NoError(t, n.Dispatch(context.Background(), msg))

	assert.Equal(t, SignBody("relay-secret", gotBody), gotSignature)

	var decoded Message
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestWebhookNotifierFailsOnRelayError(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer relay.Close()

	err := NewWebhookNotifier(relay.URL, "s").Dispatch(context.Background(), Message{ApplicationID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
