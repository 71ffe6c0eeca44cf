package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nextlevelbuilder/omniwp/internal/session"
)

func newTestClient(t *testing.T, r chi.Router, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL + "/api/v1",
		Timeout: 2 * time.Second,
		Tokens:  session.StaticToken(token),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotPublicAuth, gotReqID string
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/clients", func(w http.ResponseWriter, req *http.Request) {
			gotAuth = req.Header.Get("Authorization")
			gotReqID = req.Header.Get("X-Request-Id")
			writeJSON(w, 200, []ClientRecord{{ID: "c1", Name: "Ana", Phone: "5491122334455"}})
		})
		r.Get("/whatsapp/status", func(w http.ResponseWriter, req *http.Request) {
			gotPublicAuth = req.Header.Get("Authorization")
			writeJSON(w, 200, WhatsAppStatus{Status: "connected"})
		})
	})
	c := newTestClient(t, r, "tok")

	clients, err := c.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Ana" {
		t.Errorf("unexpected clients: %+v", clients)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReqID == "" {
		t.Error("missing X-Request-Id")
	}

	st, err := c.WhatsAppStatus(context.Background())
	if err != nil {
		t.Fatalf("WhatsAppStatus: %v", err)
	}
	if st.Status != "connected" {
		t.Errorf("status = %q", st.Status)
	}
	if gotPublicAuth != "" {
		t.Errorf("public call sent Authorization %q", gotPublicAuth)
	}
}

func TestClient_MissingTokenSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeJSON(w, 200, map[string]any{})
	})
	c := newTestClient(t, r, "")

	_, err := c.ListOrders(context.Background())
	if !errors.Is(err, session.ErrNoToken) {
		t.Fatalf("got %v, want ErrNoToken", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server was hit %d times", hits.Load())
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/clients", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 400, map[string]string{"error": "El teléfono ya existe"})
		})
		r.Get("/orders", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 500, map[string]string{"message": "boom"})
		})
		r.Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		})
		r.Get("/messages", func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			writeJSON(w, 200, []Message{})
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/api/v1", Timeout: 100 * time.Millisecond, Tokens: session.StaticToken("t")})
	ctx := context.Background()

	_, err := c.CreateClient(ctx, ClientInput{Name: "Ana"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindValidation || apiErr.Message != "El teléfono ya existe" || apiErr.Status != 400 {
		t.Errorf("validation: got %#v", err)
	}

	if _, err := c.ListOrders(ctx); !errors.Is(err, ErrServer) {
		t.Errorf("server: got %v", err)
	}
	if _, err := c.ListClients(ctx); !errors.Is(err, ErrDecode) {
		t.Errorf("decode: got %v", err)
	}
	if _, err := c.ListMessages(ctx, MessageFilters{}); !errors.Is(err, ErrTimeout) {
		t.Errorf("timeout: got %v", err)
	}
	if !Transient(&Error{Kind: KindTimeout}) || Transient(&Error{Kind: KindValidation}) {
		t.Error("Transient misclassifies")
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Health(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("got %v, want ErrNetwork", err)
	}
}

func TestClient_UnauthorizedHookFiresOncePerResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 401, map[string]string{"error": "Token inválido"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Tokens: session.StaticToken("expired")})

	var calls atomic.Int32
	c.OnUnauthorized(func() { calls.Add(1) })

	for i := 0; i < 2; i++ {
		_, err := c.ListClients(context.Background())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("hook fired %d times for 2 responses", calls.Load())
	}
}

func TestClient_UpdateOrderDropsEmptyFields(t *testing.T) {
	var body map[string]any
	r := chi.NewRouter()
	r.Put("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		json.NewDecoder(req.Body).Decode(&body)
		writeJSON(w, 200, Order{ID: chi.URLParam(req, "id"), Status: OrderCompleted})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Tokens: session.StaticToken("t")})

	o, err := c.UpdateOrder(context.Background(), "o1", OrderUpdate{Status: OrderCompleted})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if o.ID != "o1" {
		t.Errorf("id = %q", o.ID)
	}
	if _, ok := body["description"]; ok {
		t.Errorf("empty description was sent: %v", body)
	}
	if body["status"] != "completado" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestClient_QueryParameters(t *testing.T) {
	var msgQuery, waQuery string
	r := chi.NewRouter()
	r.Get("/messages", func(w http.ResponseWriter, req *http.Request) {
		msgQuery = req.URL.RawQuery
		writeJSON(w, 200, []Message{})
	})
	r.Get("/whatsapp/messages", func(w http.ResponseWriter, req *http.Request) {
		waQuery = req.URL.RawQuery
		writeJSON(w, 200, WhatsAppMessages{Total: 0})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Tokens: session.StaticToken("t")})
	ctx := context.Background()

	if _, err := c.ListMessages(ctx, MessageFilters{ClientID: "c1", Status: "sent"}); err != nil {
		t.Fatal(err)
	}
	if msgQuery != "clientId=c1&status=sent" {
		t.Errorf("messages query = %q", msgQuery)
	}

	if _, err := c.WhatsAppMessages(ctx, WhatsAppMessagesQuery{Limit: 20, Direction: "incoming"}); err != nil {
		t.Fatal(err)
	}
	if waQuery != "direction=incoming&limit=20" {
		t.Errorf("whatsapp query = %q", waQuery)
	}
}

func TestClient_ConnectUsesLongTimeout(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/whatsapp/connect-auth", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(150 * time.Millisecond)
		writeJSON(w, 200, ConnectResponse{Success: true, Status: ConnectQRGenerated, QRCode: "qr"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := New(Config{
		BaseURL:        srv.URL,
		Timeout:        50 * time.Millisecond,
		ConnectTimeout: 2 * time.Second,
		Tokens:         session.StaticToken("t"),
	})

	resp, err := c.ConnectWhatsApp(context.Background())
	if err != nil {
		t.Fatalf("ConnectWhatsApp: %v", err)
	}
	if resp.QRCode != "qr" || resp.Status != ConnectQRGenerated {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{400, KindValidation},
		{404, KindValidation},
		{401, KindUnauthorized},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindServer},
		{503, KindServer},
	}
	for _, tt := range tests {
		if got := kindForStatus(tt.status); got != tt.want {
			t.Errorf("kindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	if newRateLimiter(0, 0).enabled() {
		t.Error("rpm 0 should disable the limiter")
	}

	rl := newRateLimiter(60, 1) // one token per second
	if err := rl.wait(context.Background(), "op"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.wait(ctx, "op"); err == nil {
		t.Error("second request within the window should not fit the deadline")
	}
}
