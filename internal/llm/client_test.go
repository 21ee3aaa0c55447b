package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_NoKey(t *testing.T) {
	c := NewClient("", "", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "sys", "hi", Options{}); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestClient_SendsBoundsAndParsesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.MaxTokens != 200 || req.Temperature != 0.4 {
			t.Errorf("bounds: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hallo" {
			t.Errorf("messages: %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Wie ist Ihr Name?  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "key", "model")
	got, err := c.Generate(context.Background(), "sys", "hallo", Options{MaxTokens: 200, Temperature: 0.4})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Wie ist Ihr Name?" {
		t.Fatalf("reply: %q", got)
	}
}

func TestClient_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient("https://llm.invalid/v1", "key", "model")
			c.HTTPClient = &http.Client{Timeout: 1 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				req.URL.Scheme = "http"
				req.URL.Host = srv.Listener.Addr().String()
				return http.DefaultTransport.RoundTrip(req)
			})}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Generate(ctx, "sys", "hi", Options{}); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestClient_DefaultsToCerebras(t *testing.T) {
	var got string
	c := NewClient("", "key", "model")
	c.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got = req.URL.String()
		return nil, errors.New("offline")
	})}
	if _, err := c.Generate(context.Background(), "sys", "hi", Options{}); err == nil {
		t.Fatal("expected transport error")
	}
	if got != "https://api.cerebras.ai/v1/chat/completions" {
		t.Fatalf("endpoint = %q", got)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
