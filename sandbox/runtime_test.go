package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on this host")
	}
}

func TestRuntime_Execute_Success(t *testing.T) {
	requirePython3(t)

	rt := NewRuntime("python3", t.TempDir(), 5*time.Second)
	input := Input{TaskID: "job-1", ExtractedData: map[string]interface{}{"amount": "42"}, OCRText: "some text"}

	script := "output_data = {'doubled': extracted_data['amount'] + extracted_data['amount']}"
	out, err := rt.Execute(context.Background(), "rule-cache-key", script, input, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestRuntime_Execute_ScriptRaises(t *testing.T) {
	requirePython3(t)

	rt := NewRuntime("python3", t.TempDir(), 5*time.Second)
	input := Input{TaskID: "job-2"}

	script := "raise ValueError('boom')"
	out, err := rt.Execute(context.Background(), "rule-cache-key", script, input, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "boom")
}

func TestRuntime_Execute_MissingOutputData(t *testing.T) {
	requirePython3(t)

	rt := NewRuntime("python3", t.TempDir(), 5*time.Second)
	input := Input{TaskID: "job-3"}

	script := "x = 1"
	out, err := rt.Execute(context.Background(), "rule-cache-key", script, input, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestRuntime_Execute_Timeout(t *testing.T) {
	requirePython3(t)

	rt := NewRuntime("python3", t.TempDir(), 200*time.Millisecond)
	input := Input{TaskID: "job-4"}

	script := "import time\ntime.sleep(5)\noutput_data = {}"
	_, err := rt.Execute(context.Background(), "rule-cache-key", script, input, nil)
	assert.Error(t, err)
}

func TestRuntime_EnvironmentCached(t *testing.T) {
	rt := NewRuntime("python3", t.TempDir(), time.Second)
	dir1, err := rt.Environment(context.Background(), "key-a", nil)
	require.NoError(t, err)
	dir2, err := rt.Environment(context.Background(), "key-a", nil)
	require.NoError(t, err)
	assert.Equal(t, dir1, dir2)
}
