package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whalehub/app"
)

func TestRenderField(t *testing.T) {
	body := []byte(`{"height":7,"attributes":{"action":"claim"}}`)
	var out bytes.Buffer
	if err := render(&out, body, "attributes.action"); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "claim" {
		t.Fatalf("unexpected field value %q", got)
	}
	if err := render(&out, body, "missing"); err == nil {
		t.Fatalf("expected missing field error")
	}
	out.Reset()
	if err := render(&out, body, ""); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.String(), "\n  \"height\": 7") {
		t.Fatalf("expected indented output, got %s", out.String())
	}
}

func TestBuildEnvelope(t *testing.T) {
	env, err := buildEnvelope("bonding/bond", "migaloo1alice", "1000ampWHALE", `{"asset":{"denom":"ampWHALE","amount":1000}}`)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(env.Funds) != 1 || env.Funds.AmountOf("ampWHALE").Int64() != 1000 {
		t.Fatalf("unexpected funds %v", env.Funds)
	}
	if _, err := buildEnvelope("bonding/bond", "", "", "{}"); err == nil {
		t.Fatalf("expected missing sender error")
	}
	if _, err := buildEnvelope("bonding/nope", "migaloo1alice", "", "{}"); !errors.Is(err, app.ErrUnknownMsg) {
		t.Fatalf("expected ErrUnknownMsg, got %v", err)
	}
	if _, err := buildEnvelope("bonding/bond", "migaloo1alice", "lots", "{}"); err == nil {
		t.Fatalf("expected bad funds error")
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	var gotAuth string
	var gotEnv app.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tx":
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotEnv)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"height":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"epoch: no epoch found"}`))
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", "tok", time.Second)
	_, err := c.get(context.Background(), "/v1/epochs/9", nil)
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "epoch: no epoch found" {
		t.Fatalf("unexpected error %v", err)
	}

	body, err := c.post(context.Background(), "/v1/tx", app.Envelope{Type: "bonding/claim", Sender: "migaloo1alice"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(body) != `{"height":1}` {
		t.Fatalf("unexpected body %s", body)
	}
	if gotAuth != "Bearer tok" || gotEnv.Type != "bonding/claim" {
		t.Fatalf("request not forwarded: %q %+v", gotAuth, gotEnv)
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range newApp().Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"status", "epoch", "bonding", "incentives", "positions", "rewards", "tx", "token", "events"} {
		if !names[want] {
			t.Fatalf("command %s missing", want)
		}
	}
}
