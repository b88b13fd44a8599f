package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interview-eval-api/internal/evalcase"
)

const gradedReply = `{"concept_accuracy":3,"example_usage":2,"edge_cases":1,"clarity":1,"final_score":7,"overall_feedback":"Solid answer","improvement_tips":"Mention collisions"}`

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = previous })
	return &buf
}

func newCompletionServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + quoteJSON(gradedReply) + `}}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func quoteJSON(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func writeCases(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const casesBody = `model: gpt-4o-mini
max_retries: 0
attempt_timeout: 5s
cases:
  - name: maps-good
    question: How are Go maps implemented?
    ideal_answer: Hash tables with buckets.
    answer: Buckets of key/value pairs indexed by hash.
    expect_min_score: 6
    expect_success: true
  - name: maps-strict
    question: How are Go maps implemented?
    ideal_answer: Hash tables with buckets.
    answer: Hash tables.
    expect_min_score: 9
`

func TestRunCmdReportsExpectations(t *testing.T) {
	var calls atomic.Int32
	server := newCompletionServer(t, &calls)
	out := captureStdout(t)

	cmd := &RunCmd{
		Cases:    writeCases(t, casesBody),
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1/",
	}
	err := cmd.Run(&Globals{})
	require.ErrorContains(t, err, "1 case(s) did not meet expectations")
	require.Equal(t, int32(2), calls.Load())

	report := out.String()
	require.Contains(t, report, "[1/2] maps-good")
	require.Contains(t, report, "maps-strict")
	require.Contains(t, report, "7/10")
	require.Contains(t, report, "2 case(s), 1 passed, 1 failed")
}

func TestRunCmdFilter(t *testing.T) {
	var calls atomic.Int32
	server := newCompletionServer(t, &calls)
	out := captureStdout(t)

	cmd := &RunCmd{
		Cases:    writeCases(t, casesBody),
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1/",
		Filter:   "good$",
	}
	require.NoError(t, cmd.Run(&Globals{}))
	require.Equal(t, int32(1), calls.Load())
	require.Contains(t, out.String(), "1 case(s), 1 passed, 0 failed")

	cmd.Filter = "nothing"
	require.ErrorContains(t, cmd.Run(&Globals{}), "no cases match filter")

	cmd.Filter = "("
	require.ErrorContains(t, cmd.Run(&Globals{}), "invalid filter pattern")
}

func TestRunCmdRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	captureStdout(t)

	cmd := &RunCmd{Cases: writeCases(t, casesBody), Provider: "openai"}
	require.ErrorContains(t, cmd.Run(&Globals{}), "failed to create evaluator")
}

func TestFilterCases(t *testing.T) {
	cases := []evalcase.Case{{Name: "maps-good"}, {Name: "slices"}, {Name: "maps-strict"}}

	filtered, err := filterCases(cases, "^maps")
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	all, err := filterCases(cases, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestValidateAndSchemaCommands(t *testing.T) {
	out := captureStdout(t)

	valid := &ValidateCmd{Cases: writeCases(t, casesBody)}
	require.NoError(t, valid.Run(&Globals{}))
	require.Contains(t, out.String(), "case file is valid")

	out.Reset()
	invalid := &ValidateCmd{Cases: writeCases(t, "model: 3\ncases: nope\n")}
	require.ErrorContains(t, invalid.Run(&Globals{}), "validation failed")
	require.Contains(t, out.String(), "error(s)")

	out.Reset()
	require.NoError(t, (&SchemaCmd{}).Run(&Globals{}))
	require.Contains(t, out.String(), "Interview Evaluation Cases")
}
