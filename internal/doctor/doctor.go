// Package doctor runs environment readiness diagnostics for the backend.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/davidfarrell/muesli-backend/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment checks for a validated config.
func Run(cfg config.Config) Report {
	checks := []Check{
		checkBinary("ffmpeg", "ffmpeg", "audio normalisation requires ffmpeg in PATH"),
		checkCommand(cfg.Engines.ASR.Command, "asr_engine"),
		checkCommand(cfg.DiarCommand().Command, "diar_engine_"+cfg.DiarBackend),
		checkOutputDir(cfg.OutputDir),
	}
	return Report{Checks: checks}
}

// checkCommand validates that an engine argv names a runnable binary.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], name, fmt.Sprintf("%q not found in PATH", argv[0]))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin, name, failMsg string) Check {
	if _, err := exec.LookPath(bin); err != nil {
		return Check{Name: name, Pass: false, Message: failMsg}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%q is available", bin)}
}

// checkOutputDir validates that the capture directory is writable.
func checkOutputDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "output_dir", Pass: false, Message: fmt.Sprintf("cannot create %q: %v", dir, err)}
	}

	probe := filepath.Join(dir, ".muesli-doctor-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return Check{Name: "output_dir", Pass: false, Message: fmt.Sprintf("%q is not writable: %v", dir, err)}
	}
	_ = os.Remove(probe)
	return Check{Name: "output_dir", Pass: true, Message: fmt.Sprintf("%q is writable", dir)}
}
