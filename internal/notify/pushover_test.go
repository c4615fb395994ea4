package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNotifySendsForm testa o envio da notificação
func TestNotifySendsForm(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		received = map[string]string{
			"token":    r.PostFormValue("token"),
			"user":     r.PostFormValue("user"),
			"title":    r.PostFormValue("title"),
			"priority": r.PostFormValue("priority"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{
		APIURL:  server.URL,
		UserKey: "user-key",
		Token:   "app-token",
	})

	p.Notify(context.Background(), "Scaling aplicado", "web-01 de 2 para 3", 1)

	if received == nil {
		t.Fatal("expected notification request")
	}
	if received["token"] != "app-token" || received["user"] != "user-key" {
		t.Errorf("unexpected credentials: %v", received)
	}
	if received["title"] != "Scaling aplicado" || received["priority"] != "1" {
		t.Errorf("unexpected payload: %v", received)
	}
}

// TestNotifyCooldownSuppressesRepeats testa a supressão de repetições
func TestNotifyCooldownSuppressesRepeats(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{
		APIURL:   server.URL,
		UserKey:  "u",
		Token:    "t",
		Cooldown: time.Hour,
	})

	p.Notify(context.Background(), "Falha: scale_up", "x", 2)
	p.Notify(context.Background(), "Falha: scale_up", "y", 2)
	if calls != 1 {
		t.Errorf("same title inside cooldown should send once, got %d", calls)
	}

	// Título diferente não compartilha cooldown
	p.Notify(context.Background(), "Alerta CPU", "z", 1)
	if calls != 2 {
		t.Errorf("different title should not be suppressed, got %d", calls)
	}
}

// TestNotifyWithoutCredentialsIsNoop testa que sem credenciais nada é enviado
func TestNotifyWithoutCredentialsIsNoop(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{APIURL: server.URL})
	p.Notify(context.Background(), "t", "m", 0)

	if calls != 0 {
		t.Errorf("missing credentials should skip sending, got %d calls", calls)
	}
}
