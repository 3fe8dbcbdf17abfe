package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mindforge/internal/diag"
	"github.com/starford/mindforge/internal/memory"
	"github.com/starford/mindforge/internal/models"
	"github.com/starford/mindforge/internal/search"
	"github.com/starford/mindforge/internal/storage"
	"github.com/starford/mindforge/internal/testutil"
	"github.com/starford/mindforge/internal/transport"
)

type rpcReply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func testServer(t *testing.T, opts ...Option) (*Server, string, *storage.FS) {
	t.Helper()
	root, store := testutil.TestStore(t)
	logger := testutil.QuietLogger()
	dlog := diag.Open(root, 0)
	svc := memory.NewService(store, search.NewEngine(store, search.Options{}, logger), dlog, logger)
	return New(svc, dlog, logger, opts...), root, store
}

// exchange frames each message, serves them to EOF and returns the replies.
func exchange(t *testing.T, srv *Server, messages ...string) []rpcReply {
	t.Helper()
	var in bytes.Buffer
	for _, m := range messages {
		fmt.Fprintf(&in, "Content-Length: %d\r\n\r\n%s", len(m), m)
	}
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), &in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	r := transport.NewReader(&out, 0)
	var replies []rpcReply
	for {
		body, err := r.ReadMessage()
		if errors.Is(err, io.EOF) {
			return replies
		}
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		var rep rpcReply
		if err := json.Unmarshal(body, &rep); err != nil {
			t.Fatalf("decode reply %q: %v", body, err)
		}
		replies = append(replies, rep)
	}
}

func callMsg(id int, tool string, args any) string {
	a, _ := json.Marshal(args)
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, id, tool, a)
}

func callTool(t *testing.T, srv *Server, tool string, args any) toolResult {
	t.Helper()
	replies := exchange(t, srv, callMsg(1, tool, args))
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if replies[0].Error != nil {
		t.Fatalf("rpc error: %+v", replies[0].Error)
	}
	var res toolResult
	if err := json.Unmarshal(replies[0].Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res
}

func resultText(r toolResult) string {
	if len(r.Content) > 0 {
		return r.Content[0].Text
	}
	return ""
}

func TestInitializeAndList(t *testing.T) {
	srv, _, _ := testServer(t)
	replies := exchange(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	if len(replies) != 2 {
		t.Fatalf("replies = %d, want 2 (notification must not be answered)", len(replies))
	}

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal(replies[0].Result, &init); err != nil {
		t.Fatal(err)
	}
	if init.ProtocolVersion != ProtocolVersion || init.ServerInfo.Name != ServerName {
		t.Errorf("initialize = %+v", init)
	}
	if _, ok := init.Capabilities["tools"]; !ok {
		t.Error("tools capability missing")
	}

	var list struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(replies[1].Result, &list); err != nil {
		t.Fatal(err)
	}
	want := []string{ToolStatus, ToolSearch, ToolUpdateState, ToolSaveDecision, ToolSaveProgress, ToolSaveSession}
	if len(list.Tools) != len(want) || len(srv.Tools()) != len(want) {
		t.Fatalf("tools = %d listed, %d in catalog, want %d", len(list.Tools), len(srv.Tools()), len(want))
	}
	for i, name := range want {
		if list.Tools[i].Name != name || srv.Tools()[i].Name != name {
			t.Errorf("tool %d = %q, want %q", i, list.Tools[i].Name, name)
		}
		if list.Tools[i].InputSchema["type"] != "object" {
			t.Errorf("tool %s schema type = %v", name, list.Tools[i].InputSchema["type"])
		}
	}
}

func TestPingAndUnknownMethod(t *testing.T) {
	srv, _, _ := testServer(t)
	replies := exchange(t, srv,
		`{"jsonrpc":"2.0","id":"a","method":"ping"}`,
		`{"jsonrpc":"2.0","id":"b","method":"resources/list"}`,
	)
	if len(replies) != 2 {
		t.Fatalf("replies = %d", len(replies))
	}
	if string(replies[0].Result) != "{}" || replies[0].Error != nil {
		t.Errorf("ping reply = %s %+v", replies[0].Result, replies[0].Error)
	}
	if replies[1].Error == nil || replies[1].Error.Code != -32601 {
		t.Errorf("unknown method reply = %+v", replies[1].Error)
	}
	if string(replies[1].ID) != `"b"` {
		t.Errorf("id = %s", replies[1].ID)
	}
}

func TestMalformedInputDoesNotStopTheStream(t *testing.T) {
	srv, _, _ := testServer(t)
	in := "X-Junk: 1\r\n\r\n" +
		"Content-Length: 9\r\n\r\nnot json!" +
		fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), `{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	body, err := transport.NewReader(&out, 0).ReadMessage()
	if err != nil {
		t.Fatalf("no reply after bad frames: %v", err)
	}
	if !strings.Contains(string(body), `"id":7`) {
		t.Errorf("reply = %s", body)
	}
}

func TestOversizedMessageSkipped(t *testing.T) {
	srv, _, _ := testServer(t, WithMaxMessage(64))
	big := callMsg(1, ToolSaveSession, map[string]any{"summary": strings.Repeat("x", 100)})
	replies := exchange(t, srv, big, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	if len(replies) != 1 || string(replies[0].ID) != "2" {
		t.Errorf("replies = %+v", replies)
	}
}

func TestLyingLengthDoesNotStallReplies(t *testing.T) {
	srv, _, _ := testServer(t, WithMaxMessage(1024))
	ping := `{"jsonrpc":"2.0","id":2,"method":"ping"}`
	init := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	in := "Content-Length: 2000000\r\n\r\n{}" +
		fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(init), init) +
		fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(ping), ping)

	var out bytes.Buffer
	if err := srv.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	r := transport.NewReader(&out, 0)
	for _, id := range []string{`"id":1`, `"id":2`} {
		body, err := r.ReadMessage()
		if err != nil || !strings.Contains(string(body), id) {
			t.Fatalf("want reply with %s, got %q, %v", id, body, err)
		}
	}
}

func TestUnknownTool(t *testing.T) {
	srv, _, _ := testServer(t)
	res := callTool(t, srv, "memory_delete_everything", map[string]any{})
	if !res.IsError || resultText(res) != "Unknown tool: memory_delete_everything" {
		t.Errorf("result = %+v", res)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	srv, root, _ := testServer(t)
	res := callTool(t, srv, ToolSaveSession, map[string]any{"summary": strings.Repeat("y", 60*1024)})
	if !res.IsError || !strings.Contains(resultText(res), "too large") {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, models.SessionDoc)); !os.IsNotExist(err) {
		t.Error("handler ran for an oversized payload")
	}
}

func TestFieldTooLarge(t *testing.T) {
	srv, root, _ := testServer(t)
	res := callTool(t, srv, ToolUpdateState, map[string]any{
		"phase":    "ok",
		"blockers": []string{"fine", strings.Repeat("z", 6000)},
	})
	if !res.IsError || !strings.Contains(resultText(res), "per field") || !strings.Contains(resultText(res), `"blockers"`) {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, models.StateDoc)); !os.IsNotExist(err) {
		t.Error("handler ran for an oversized field")
	}
	if _, err := os.Stat(filepath.Join(root, models.DiagnosticsFile)); !os.IsNotExist(err) {
		t.Error("validation failure written to diagnostics")
	}
}

func TestRequiredFields(t *testing.T) {
	srv, _, _ := testServer(t)
	cases := []struct {
		tool string
		args map[string]any
	}{
		{ToolSearch, map[string]any{}},
		{ToolSaveDecision, map[string]any{"title": "t"}},
		{ToolSaveProgress, map[string]any{"action": "add"}},
		{ToolSaveProgress, map[string]any{"task": "x", "action": "delete"}},
		{ToolSaveSession, map[string]any{"next": "n"}},
		{ToolSearch, map[string]any{"query": "q", "limit": 500}},
	}
	for _, c := range cases {
		res := callTool(t, srv, c.tool, c.args)
		if !res.IsError {
			t.Errorf("%s %v: want error, got %q", c.tool, c.args, resultText(res))
		}
	}
}

func TestScenario_StatusRoundTrip(t *testing.T) {
	srv, _, _ := testServer(t)
	res := callTool(t, srv, ToolStatus, nil)
	if res.IsError || !strings.Contains(resultText(res), "No STATE.md found") {
		t.Errorf("empty status = %+v", res)
	}

	res = callTool(t, srv, ToolUpdateState, map[string]any{"phase": "Phase 1", "active_work": []string{"parser"}})
	if res.IsError {
		t.Fatalf("update failed: %s", resultText(res))
	}
	res = callTool(t, srv, ToolStatus, map[string]any{})
	text := resultText(res)
	for _, want := range []string{"## Current Phase\nPhase 1", "## Active Work\n- parser", "## Blocked Items\nNone", "## Last Updated"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q:\n%s", want, text)
		}
	}
}

func TestScenario_SessionAcceptsStringOrList(t *testing.T) {
	srv, _, store := testServer(t)
	callTool(t, srv, ToolSaveSession, map[string]any{"summary": "one", "completed": "single item"})
	res := callTool(t, srv, ToolSaveSession, map[string]any{"summary": "two", "completed": []string{"a", "b"}})
	if res.IsError || resultText(res) != "Session 2 logged." {
		t.Fatalf("result = %+v", res)
	}
	content := testutil.ReadDoc(t, store, models.SessionDoc)
	if !strings.Contains(content, "- **Completed:** single item") || !strings.Contains(content, "- **Completed:** a, b") {
		t.Errorf("session log:\n%s", content)
	}
}

func TestScenario_ProgressAndSearch(t *testing.T) {
	srv, _, _ := testServer(t)
	callTool(t, srv, ToolSaveProgress, map[string]any{"task": "Ship login"})
	res := callTool(t, srv, ToolSaveProgress, map[string]any{"task": "ship login", "action": "complete"})
	if res.IsError || resultText(res) != "Marked complete: Ship login" {
		t.Fatalf("complete = %+v", res)
	}
	res = callTool(t, srv, ToolSaveProgress, map[string]any{"task": "never added", "action": "complete"})
	if !res.IsError || resultText(res) != `No open task matching "never added"` {
		t.Errorf("miss = %+v", res)
	}

	res = callTool(t, srv, ToolSearch, map[string]any{"query": "login", "limit": 5})
	if res.IsError || !strings.Contains(resultText(res), "PROGRESS.md") {
		t.Errorf("search = %+v", res)
	}
}

func TestTraversalTextStaysInsideStore(t *testing.T) {
	srv, root, _ := testServer(t)
	parent := filepath.Dir(root)
	res := callTool(t, srv, ToolSaveDecision, map[string]any{
		"title":    "../../escape",
		"decision": "../DECISIONS.md",
	})
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") {
			t.Errorf("file written outside the store: %s", e.Name())
		}
	}
}

func TestHandlerErrorRecordedInDiagnostics(t *testing.T) {
	srv, root, _ := testServer(t)
	// A directory in place of the document makes the atomic replace fail.
	if err := os.Mkdir(filepath.Join(root, models.DecisionsDoc), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, models.DecisionsDoc, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := callTool(t, srv, ToolSaveDecision, map[string]any{"title": "t", "decision": "d"})
	if !res.IsError || !strings.HasPrefix(resultText(res), "Error: ") {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(root, models.DiagnosticsFile))
	if err != nil || !strings.Contains(string(data), `"category":"tool"`) {
		t.Errorf("diagnostics = %q, %v", data, err)
	}
}

func TestPanicBecomesErrorResult(t *testing.T) {
	srv, root, _ := testServer(t)
	srv.handlers["memory_boom"] = func(context.Context, json.RawMessage) (string, error) {
		panic("boom")
	}
	res := callTool(t, srv, "memory_boom", map[string]any{})
	if !res.IsError || !strings.Contains(resultText(res), "boom") {
		t.Errorf("result = %+v", res)
	}
	data, _ := os.ReadFile(filepath.Join(root, models.DiagnosticsFile))
	if !strings.Contains(string(data), `"category":"panic"`) {
		t.Errorf("panic not recorded: %q", data)
	}

	// The server keeps answering afterwards.
	if res := callTool(t, srv, ToolStatus, nil); res.IsError {
		t.Errorf("status after panic = %+v", res)
	}
}
