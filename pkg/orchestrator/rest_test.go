package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

type failingTokens struct{}

func (failingTokens) Token(ctx context.Context) (string, error) {
	return "", fmt.Errorf("refresh failed")
}

func testTopology(t *testing.T) *topology.Document {
	t.Helper()
	s := topology.NewSlice("unit")
	if _, err := s.AddNode("n1", topology.NodeConfig{Site: "STAR", Cores: 2, RAM: 8, Disk: 10}); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	return s.Document()
}

func TestSubmit(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotPayload submitPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(submitResponse{
			SliceID: "slice-guid-1",
			Snapshot: &topology.Snapshot{
				SliceID: "slice-guid-1",
				State:   "Configuring",
			},
		})
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL, Tokens: staticTokens("tok123")})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	leaseEnd := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	id, snap, err := c.Submit(context.Background(), SubmitRequest{
		Name:     "unit",
		Project:  "proj-a",
		SSHKey:   "ssh-ed25519 AAAA test",
		LeaseEnd: leaseEnd,
		Topology: testTopology(t),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "slice-guid-1" {
		t.Errorf("Submit() id = %q, want %q", id, "slice-guid-1")
	}
	if snap == nil || snap.SliceID != "slice-guid-1" {
		t.Errorf("Submit() snapshot = %+v, want slice-guid-1", snap)
	}
	if gotMethod != http.MethodPost || gotPath != "/slices" {
		t.Errorf("request = %s %s, want POST /slices", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok123")
	}
	if gotPayload.Name != "unit" || gotPayload.Project != "proj-a" {
		t.Errorf("payload name/project = %q/%q", gotPayload.Name, gotPayload.Project)
	}
	if gotPayload.LeaseEnd != "2026-09-01 12:00:00 +0000" {
		t.Errorf("payload lease_end = %q", gotPayload.LeaseEnd)
	}
	if gotPayload.Topology == nil || len(gotPayload.Topology.Nodes) != 1 {
		t.Errorf("payload topology nodes = %+v, want 1 node", gotPayload.Topology)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(errorBody{Code: "DUPLICATE", Message: "slice name already in use"})
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	_, _, err = c.Submit(context.Background(), SubmitRequest{Name: "dup", Topology: testTopology(t)})
	if !errors.Is(err, util.ErrRejected) {
		t.Fatalf("Submit() error = %v, want ErrRejected", err)
	}
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("Submit() error type = %T, want *RejectedError", err)
	}
	if rej.Status != http.StatusConflict || rej.Code != "DUPLICATE" {
		t.Errorf("RejectedError = %+v", rej)
	}
	if errors.Is(err, util.ErrTransport) {
		t.Error("rejection must not match ErrTransport")
	}
}

func TestQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	_, err = c.Query(context.Background(), "slice-guid-1")
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("Query() error = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "query" {
		t.Errorf("Query() error = %+v, want TransportError with op query", err)
	}
}

func TestQueryConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	_, err = c.Query(context.Background(), "slice-guid-1")
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("Query() error = %v, want ErrTransport", err)
	}
}

func TestQueryDecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slices/slice-guid-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(topology.Snapshot{
			SliceID: "slice-guid-1",
			State:   "StableOK",
			Nodes: map[string]topology.NodeSliver{
				"n1": {ReservationID: "res-1", State: topology.StateActive, ManagementIP: "203.0.113.7"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	snap, err := c.Query(context.Background(), "slice-guid-1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	n, ok := snap.Nodes["n1"]
	if !ok {
		t.Fatalf("Query() snapshot missing node n1: %+v", snap)
	}
	if n.State != topology.StateActive || n.ManagementIP != "203.0.113.7" {
		t.Errorf("node sliver = %+v", n)
	}
}

func TestDeleteGoneSlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorBody{Code: "NOT_FOUND", Message: "no such slice"})
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	if err := c.Delete(context.Background(), "slice-gone"); err != nil {
		t.Errorf("Delete() error = %v, want nil for missing slice", err)
	}
}

func TestRenew(t *testing.T) {
	var gotPath string
	var gotPayload renewPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	end := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	if err := c.Renew(context.Background(), "slice-guid-1", end); err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if gotPath != "/slices/slice-guid-1/renew" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload.LeaseEnd != "2026-10-15 08:30:00 +0000" {
		t.Errorf("lease_end = %q", gotPayload.LeaseEnd)
	}
}

func TestTokenFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server when the token fetch fails")
	}))
	defer srv.Close()

	c, err := NewRESTClient(RESTConfig{Endpoint: srv.URL, Tokens: failingTokens{}})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}

	_, err = c.Query(context.Background(), "slice-guid-1")
	if !errors.Is(err, util.ErrTransport) {
		t.Errorf("Query() error = %v, want ErrTransport", err)
	}
}

func TestNewRESTClientValidation(t *testing.T) {
	if _, err := NewRESTClient(RESTConfig{}); err == nil {
		t.Error("NewRESTClient() with empty endpoint: expected error")
	}
}
