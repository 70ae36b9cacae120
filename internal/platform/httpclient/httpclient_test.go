package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_DoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"trace":"` + r.Header.Get("X-Trace") + `"}`))
	}))
	defer srv.Close()

	c, err := NewWithBaseURL(srv.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.WithAPIKey("k1")

	var out struct {
		OK    bool   `json:"ok"`
		Trace string `json:"trace"`
	}
	if err := c.DoJSON(context.Background(), http.MethodGet, "ping", map[string]string{"X-Trace": "t-1"}, nil, &out); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !out.OK || out.Trace != "t-1" {
		t.Fatalf("unexpected body: %+v", out)
	}

	err = c.DoJSON(context.Background(), http.MethodGet, "/missing", nil, nil, nil)
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
}

func TestClient_RelativePathRequiresBaseURL(t *testing.T) {
	c := New(0)
	if err := c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil); err == nil {
		t.Fatalf("expected error without BaseURL")
	}
	if _, err := NewWithBaseURL("::bad", time.Second); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}
