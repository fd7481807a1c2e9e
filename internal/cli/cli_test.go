package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPayCommand_PrintsEchoedActionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-7/actions/payments", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["from"])
		assert.Equal(t, "12.50", body["amount"])
		json.NewEncoder(w).Encode(map[string]string{
			"action_id": body["action_id"].(string), "status": "accepted", "tx_id": "tx-3",
		})
	}))
	defer srv.Close()
	t.Setenv("SKEIN_ENGINE_URL", srv.URL)

	out, err := executeCommand(t, "pay", "alice", "bob", "12.50", "--run", "run-7")
	require.NoError(t, err)
	assert.Contains(t, out, "accepted")
	assert.Contains(t, out, "tx-3")
}

func TestPayCommand_RejectsBadAmount(t *testing.T) {
	t.Setenv("SKEIN_ENGINE_URL", "http://unused.invalid")

	_, err := executeCommand(t, "pay", "alice", "bob", "lots", "--run", "run-7")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = executeCommand(t, "pay", "alice", "bob", "0", "--run", "run-7")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPayCommand_RequiresRun(t *testing.T) {
	t.Setenv("SKEIN_ENGINE_URL", "http://unused.invalid")

	_, err := executeCommand(t, "pay", "alice", "bob", "5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no run id")
}

func TestTrustlineClose_ConflictPrintedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-7/actions/trustlines/close", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{
			"code": "reverse_usage_outstanding",
			"message": "cannot close line with outstanding debt",
			"details": {"outstanding": "5.25"}
		}`))
	}))
	defer srv.Close()
	t.Setenv("SKEIN_ENGINE_URL", srv.URL)

	out, err := executeCommand(t, "trustline", "close", "alice", "bob", "--run", "run-7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "a conflict is an engine refusal, not a command error")
	assert.Contains(t, out, "cannot close line with outstanding debt")
	assert.Contains(t, out, "outstanding")
}

func TestTrustlineOpen_SendsLimit(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-7/actions/trustlines/open", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]string{
			"action_id": "act-1", "status": "accepted",
		})
	}))
	defer srv.Close()
	t.Setenv("SKEIN_ENGINE_URL", srv.URL)

	out, err := executeCommand(t, "trustline", "open", "alice", "bob", "100", "--run", "run-7")
	require.NoError(t, err)
	assert.Equal(t, "100", body["trust_limit"])
	assert.Contains(t, out, "act-1")
}

func TestClearCommand_JSONOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-7/actions/clearing", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"action_id": "act-9", "status": "accepted"})
	}))
	defer srv.Close()
	t.Setenv("SKEIN_ENGINE_URL", srv.URL)

	out, err := executeCommand(t, "clear", "--run", "run-7", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := executeCommand(t, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "skein")
}

func TestSnapshotCommand_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-7/snapshot", r.URL.Path)
		w.Write([]byte(`{
			"equivalent": "EUR", "generated_at": 3,
			"nodes": [{"id": "alice", "status": "active", "balance": "10"}],
			"links": [{"source": "alice", "target": "bob", "trust_limit": "100",
			           "used": "40", "available": "60", "status": "active"}]
		}`))
	}))
	defer srv.Close()
	t.Setenv("SKEIN_ENGINE_URL", srv.URL)

	out, err := executeCommand(t, "snapshot", "--run", "run-7")
	require.NoError(t, err)
	assert.Contains(t, out, "1 participants, 1 credit lines")
	assert.Contains(t, out, "alice -> bob")
}
