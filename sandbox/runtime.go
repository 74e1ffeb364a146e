// Package sandbox runs an operator-supplied pipeline script per job
// inside a subprocess, with a per-rule dependency cache keyed by the
// pipeline's cache key and a fixed harness exposing
// {task_id, extracted_data, ocr_text, meta_info}.
package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"idp.evalgo.org/common"
)

//go:embed harness.py
var harnessSource []byte

const defaultTimeout = 300 * time.Second

// Input is what a pipeline script receives.
type Input struct {
	TaskID        string      `json:"task_id"`
	ExtractedData interface{} `json:"extracted_data"`
	OCRText       string      `json:"ocr_text"`
	MetaInfo      interface{} `json:"meta_info"`
	ScriptPath    string      `json:"script_path"`
}

// Output is the harness's captured result.
type Output struct {
	Success      bool        `json:"success"`
	OutputData   interface{} `json:"output_data"`
	ErrorMessage string      `json:"error_message"`
}

// Runtime executes operator scripts via a Python3 subprocess, caching one
// provisioned environment directory per pipeline cache key.
type Runtime struct {
	PythonPath string
	CacheRoot  string
	Timeout    time.Duration

	mu        sync.Mutex
	envsByKey map[string]string
}

// NewRuntime builds a Runtime rooted at cacheRoot, where per-pipeline
// environment directories are provisioned and reused across executions.
func NewRuntime(pythonPath, cacheRoot string, timeout time.Duration) *Runtime {
	if pythonPath == "" {
		pythonPath = "python3"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runtime{
		PythonPath: pythonPath,
		CacheRoot:  cacheRoot,
		Timeout:    timeout,
		envsByKey:  make(map[string]string),
	}
}

// Environment provisions (on first use) or reuses the cache directory for
// cacheKey, installing dependencies via pip into it. Returns the
// directory path; Execute calls this itself and puts the directory on the
// script subprocess's PYTHONPATH.
func (r *Runtime) Environment(ctx context.Context, cacheKey string, dependencies []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir, ok := r.envsByKey[cacheKey]; ok {
		return dir, nil
	}

	dir := filepath.Join(r.CacheRoot, cacheKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", common.FailedToWithDetails("provision sandbox environment", "sandbox", cacheKey, err)
	}

	if len(dependencies) > 0 {
		args := append([]string{"-m", "pip", "install", "--target", dir}, dependencies...)
		cmd := exec.CommandContext(ctx, r.PythonPath, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", common.FailedToWithDetails("install sandbox dependencies", "sandbox", cacheKey,
				fmt.Errorf("%w: %s", err, string(out)))
		}
	}

	r.envsByKey[cacheKey] = dir
	return dir, nil
}

// InvalidateEnvironment drops the cached environment for cacheKey,
// forcing the next Environment call to reprovision it (used when the
// pipeline's dependency list changes).
func (r *Runtime) InvalidateEnvironment(cacheKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.envsByKey, cacheKey)
}

// Execute runs scriptSource against input inside the environment for
// cacheKey, honoring r.Timeout. A timed-out subprocess is killed and
// reported as a timeout error.
func (r *Runtime) Execute(ctx context.Context, cacheKey, scriptSource string, input Input, dependencies []string) (*Output, error) {
	envDir, err := r.Environment(ctx, cacheKey, dependencies)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "sandbox-run-*")
	if err != nil {
		return nil, common.FailedTo("create sandbox work dir", err)
	}
	defer os.RemoveAll(workDir)

	scriptPath := filepath.Join(workDir, "script.py")
	if err := os.WriteFile(scriptPath, []byte(scriptSource), 0o644); err != nil {
		return nil, common.FailedTo("write operator script", err)
	}

	harnessPath := filepath.Join(workDir, "harness.py")
	if err := os.WriteFile(harnessPath, harnessSource, 0o644); err != nil {
		return nil, common.FailedTo("write sandbox harness", err)
	}

	input.ScriptPath = scriptPath
	inputPath := filepath.Join(workDir, "input.json")
	inputBytes, err := json.Marshal(input)
	if err != nil {
		return nil, common.FailedTo("encode sandbox input", err)
	}
	if err := os.WriteFile(inputPath, inputBytes, 0o644); err != nil {
		return nil, common.FailedTo("write sandbox input", err)
	}

	outputPath := filepath.Join(workDir, "output.json")

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.PythonPath, harnessPath, inputPath, outputPath)
	cmd.Env = append(os.Environ(), "PYTHONPATH="+envDir)

	if _, err := cmd.CombinedOutput(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, common.TimeoutError("execute sandbox script", r.Timeout.String())
		}
		return nil, common.FailedToWithDetails("execute sandbox script", "sandbox", cacheKey, err)
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, common.FailedTo("read sandbox output", err)
	}

	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, common.ParseError("sandbox output", "json", err)
	}
	return &out, nil
}
