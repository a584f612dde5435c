// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package statusfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forge-foundation/forge/lib/action"
	"github.com/forge-foundation/forge/lib/step"
	"github.com/forge-foundation/forge/orchestrator"
	"github.com/forge-foundation/forge/runtime"
)

const sampleDoc = `<forgeArtifact id="feed-app" title="Feed App">
<forgeAction type="file" filePath="index.html">
<h1>feed</h1>
</forgeAction>
</forgeArtifact>`

func newTestServer(t *testing.T) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()
	orch := orchestrator.New(orchestrator.Options{Runtime: runtime.NewFake()})
	t.Cleanup(func() { orch.Close() })

	server := httptest.NewServer(New(Options{Orchestrator: orch}).Handler())
	t.Cleanup(server.Close)
	return server, orch
}

func getJSON(t *testing.T, url string, target any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
}

func TestStepsEndpoint(t *testing.T) {
	t.Parallel()

	server, orch := newTestServer(t)
	artifact, _ := parseDoc(t)
	if err := orch.Mount(context.Background(), artifact); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	var steps []step.Step
	getJSON(t, server.URL+"/api/steps", &steps)

	byID := make(map[string]step.Step)
	for _, entry := range steps {
		byID[entry.ID] = entry
	}
	if byID[orchestrator.StepBoot].Status != step.Success {
		t.Errorf("boot step = %+v", byID[orchestrator.StepBoot])
	}
	if byID[orchestrator.StepMount].Status != step.Success {
		t.Errorf("mount step = %+v", byID[orchestrator.StepMount])
	}
}

func TestStateEndpoint(t *testing.T) {
	t.Parallel()

	server, orch := newTestServer(t)
	if err := orch.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	var state StateResponse
	getJSON(t, server.URL+"/api/state", &state)
	if state.Phase != orchestrator.PhaseReady {
		t.Errorf("phase = %v, want ready", state.Phase)
	}
	if state.SessionID == "" {
		t.Error("session id missing")
	}
}

func TestTerminalEndpoint(t *testing.T) {
	t.Parallel()

	server, orch := newTestServer(t)
	orch.Terminal().WriteString("booting toolchain\n")

	var first TerminalResponse
	getJSON(t, server.URL+"/api/terminal", &first)
	if first.Data != "booting toolchain\n" {
		t.Errorf("data = %q", first.Data)
	}
	if first.Next == 0 {
		t.Error("next offset not advanced")
	}

	var caughtUp TerminalResponse
	getJSON(t, server.URL+"/api/terminal?offset="+strconv.FormatUint(first.Next, 10), &caughtUp)
	if caughtUp.Data != "" {
		t.Errorf("caught-up read returned %q", caughtUp.Data)
	}

	resp, err := http.Get(server.URL + "/api/terminal?offset=minus-one")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad offset status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server, orch := newTestServer(t)
	artifact, _ := parseDoc(t)
	if err := orch.Mount(context.Background(), artifact); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "forge_orchestrator_operations_total") {
		t.Error("metrics output missing orchestrator counter")
	}
}

func TestWebSocketStream(t *testing.T) {
	t.Parallel()

	server, orch := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial Message
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("reading initial frame: %v", err)
	}
	if initial.Type != "steps" {
		t.Fatalf("initial frame type = %q, want steps", initial.Type)
	}

	orch.Tracker().Upsert("probe", "Probe step", step.Running, "")
	orch.Terminal().WriteString("chunk one\n")

	sawProbe := false
	sawTerminal := false
	for !sawProbe || !sawTerminal {
		var message Message
		if err := conn.ReadJSON(&message); err != nil {
			t.Fatalf("reading frame: %v (probe=%v terminal=%v)", err, sawProbe, sawTerminal)
		}
		switch message.Type {
		case "steps":
			for _, entry := range message.Steps {
				if entry.ID == "probe" {
					sawProbe = true
				}
			}
		case "terminal":
			if strings.Contains(message.Data, "chunk one") {
				sawTerminal = true
			}
		default:
			t.Fatalf("unexpected frame type %q", message.Type)
		}
	}
}

func parseDoc(t *testing.T) (action.Artifact, []action.Warning) {
	t.Helper()
	artifact, warnings := action.Parse(sampleDoc)
	if artifact.ID == "" {
		t.Fatal("sample document did not parse")
	}
	return artifact, warnings
}
