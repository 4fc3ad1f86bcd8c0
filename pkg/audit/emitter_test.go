package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

type recordingEmitter struct {
	events   []*Event
	err      error
	closed   bool
	closeErr error
}

func (r *recordingEmitter) Emit(ctx context.Context, event *Event) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingEmitter) Close() error {
	r.closed = true
	return r.closeErr
}

func TestRequestInfoFromHTTP(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/oidc", nil)
	req.RemoteAddr = "203.0.113.7:41000"
	req.Header.Set("X-Forwarded-For", "10.9.9.9")
	req.Header.Set("User-Agent", "alerta-web")
	req = req.WithContext(observability.WithRequestID(req.Context(), "req-9"))

	info := RequestInfoFromHTTP(req)
	assert.Equal(t, "203.0.113.7", info.IPAddress)
	assert.Equal(t, "alerta-web", info.UserAgent)
	assert.Equal(t, "req-9", info.RequestID)
	assert.Equal(t, "POST", info.Method)
	assert.Equal(t, "/auth/oidc", info.Path)

	assert.Equal(t, RequestInfo{}, RequestInfoFromHTTP(nil))
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(observability.NewLogger(observability.InfoLevel, &buf))

	err := emitter.Emit(context.Background(), &Event{
		Timestamp: time.Now(),
		EventType: EventTypeOIDCLogin,
		Message:   "user login via OAuth2/OIDC",
		Username:  "alice",
		Scopes:    []string{"read"},
	})
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "user login via OAuth2/OIDC", entry["msg"])
	assert.Equal(t, "oidc-login", entry["event_type"])
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "audit", entry["component"])
	assert.NoError(t, emitter.Close())
}

func TestMultiEmitter(t *testing.T) {
	t.Run("fans out to every sink", func(t *testing.T) {
		first, second := &recordingEmitter{}, &recordingEmitter{}
		multi := NewMultiEmitter(first, second)

		require.NoError(t, multi.Emit(context.Background(), &Event{Username: "alice"}))
		assert.Len(t, first.events, 1)
		assert.Len(t, second.events, 1)
	})

	t.Run("continues past a failing sink", func(t *testing.T) {
		sinkErr := errors.New("db down")
		failing, healthy := &recordingEmitter{err: sinkErr}, &recordingEmitter{}
		multi := NewMultiEmitter(failing, healthy)

		err := multi.Emit(context.Background(), &Event{Username: "alice"})
		assert.ErrorIs(t, err, sinkErr)
		assert.Len(t, healthy.events, 1)
	})

	t.Run("closes every sink", func(t *testing.T) {
		closeErr := errors.New("close failed")
		first, second := &recordingEmitter{closeErr: closeErr}, &recordingEmitter{}
		multi := NewMultiEmitter(first, second)

		assert.ErrorIs(t, multi.Close(), closeErr)
		assert.True(t, first.closed)
		assert.True(t, second.closed)
	})
}

func TestNopEmitter(t *testing.T) {
	var emitter Emitter = NopEmitter{}
	assert.NoError(t, emitter.Emit(context.Background(), &Event{}))
	assert.NoError(t, emitter.Close())
}

func TestNewLoginEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := NewLoginEvent(at, "alice", "sub-1", []string{}, []string{"read"}, []string{"user"}, []string{"eng"},
		RequestInfo{IPAddress: "10.0.0.1"})

	assert.Equal(t, EventTypeOIDCLogin, event.EventType)
	assert.Equal(t, "user login via OAuth2/OIDC", event.Message)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, "sub-1", event.ResourceID)
	assert.Equal(t, ResourceTypeUser, event.ResourceType)
	assert.True(t, at.Equal(event.Timestamp))
	assert.Equal(t, "10.0.0.1", event.Request.IPAddress)

	data, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"oidc-login"`)
}
