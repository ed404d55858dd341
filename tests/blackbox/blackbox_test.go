package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "inferd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/inferd")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func createWeightsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.gguf"), make([]byte, 1024), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	return dir
}

type serverProc struct {
	cmd  *exec.Cmd
	base string
}

func startServer(t *testing.T, bin, modelDir string, port int) *serverProc {
	t.Helper()
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve",
		"--addr", fmt.Sprintf(":%d", port),
		"--model-dir", modelDir,
		"--cache-dir", t.TempDir(),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{cmd: cmd, base: base}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	modelDir := createWeightsDir(t)
	sp := startServer(t, bin, modelDir, findFreePort(t))

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// /readyz eventually 200 once the local weights load.
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, _ = get(t, sp.base+"/readyz")
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz did not become ready; last=%d", resp.StatusCode)
		}
		time.Sleep(25 * time.Millisecond)
	}

	// /status reports the loaded model.
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var status struct {
		State string `json:"state"`
		Model *struct {
			Filename string `json:"filename"`
		} `json:"model"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if status.State != "ready" || status.Model == nil || status.Model.Filename != "tiny.gguf" {
		t.Fatalf("unexpected status: %s", string(body))
	}

	// The default build has no llama runtime, so generation is 503.
	resp, body = postJSON(t, sp.base+"/v1/generate", []byte(`{"prompt":"hello","max_tokens":8}`))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/v1/generate expected 503 without llama runtime, got %d %s", resp.StatusCode, string(body))
	}

	// Tool planning works without the native runtime.
	resp, body = postJSON(t, sp.base+"/v1/tools/plan",
		[]byte(`{"calls":[{"name":"read_file","arguments":{"path":"a.txt"}},{"name":"write_file","arguments":{"path":"a.txt","content":"x"}}]}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/tools/plan %d %s", resp.StatusCode, string(body))
	}
	var plan struct {
		Mode   string `json:"mode"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &plan); err != nil {
		t.Fatalf("plan json: %v body=%s", err, string(body))
	}
	if plan.Mode != "sequential" {
		t.Fatalf("expected sequential plan, got %s", string(body))
	}

	// Sessions start empty.
	resp, body = get(t, sp.base+"/v1/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/sessions %d %s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_BadRequests(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, createWeightsDir(t), findFreePort(t))

	resp, _ := postJSON(t, sp.base+"/v1/generate", []byte(`{not json`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, sp.base+"/v1/generate", []byte(`{"prompt":""}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = get(t, sp.base+"/v1/sessions/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session: expected 404, got %d", resp.StatusCode)
	}
}
