package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWhatsAppSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+14155238886", r.PostForm.Get("From"))
		assert.Equal(t, "whatsapp:+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	m := NewWhatsAppMessenger("AC123", "secret", "14155238886", srv.URL, srv.Client(), zap.NewNop())
	require.True(t, m.Configured())

	res, err := m.SendMessage(context.Background(), "15551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM42", res.MessageID)
	assert.Equal(t, "queued", res.Status)
}

func TestWhatsAppSendMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	m := NewWhatsAppMessenger("AC123", "secret", "+14155238886", srv.URL, srv.Client(), zap.NewNop())
	_, err := m.SendMessage(context.Background(), "+1555", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.Contains(t, err.Error(), "21211")
}

func TestWhatsAppUnconfigured(t *testing.T) {
	m := NewWhatsAppMessenger("", "", "", "", nil, zap.NewNop())
	assert.False(t, m.Configured())
	_, err := m.SendMessage(context.Background(), "+15551234567", "hello")
	assert.Error(t, err)
}

func TestE164(t *testing.T) {
	assert.Equal(t, "+15551234567", E164("15551234567"))
	assert.Equal(t, "+15551234567", E164(" +15551234567 "))
	assert.Equal(t, "", E164(""))
}

func TestWhatsAppSendMessageCancelled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := NewWhatsAppMessenger("AC123", "secret", "+14155238886", srv.URL, srv.Client(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.SendMessage(ctx, "+15551234567", "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRedirectClient(t *testing.T) {
	client := &http.Client{}
	assert.Same(t, client, redirectClient(client, "https://api.twilio.com/", zap.NewNop()))
	assert.Same(t, client, redirectClient(client, "", zap.NewNop()))

	redirected := redirectClient(client, "http://127.0.0.1:9999", zap.NewNop())
	assert.NotSame(t, client, redirected)
	assert.IsType(t, &hostRewrite{}, redirected.Transport)
}
