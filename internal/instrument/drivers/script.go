package drivers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultScriptTimeout bounds every Script ("Other") measurement run; a
// shorter deadline already on the caller's context still applies first.
const defaultScriptTimeout = 30 * time.Second

// RunScript invokes python3 against scriptsDir/name with args, returning its
// decoded stdout. name is resolved relative to scriptsDir so plans cannot
// reference paths outside it (spec §9: scripts are sandboxed to SCRIPTS_DIR).
func RunScript(ctx context.Context, scriptsDir, name string, args []string) (string, error) {
	path := filepath.Join(scriptsDir, filepath.Base(name))

	runCtx, cancel := context.WithTimeout(ctx, defaultScriptTimeout)
	defer cancel()

	cmdArgs := append([]string{path}, args...)
	cmd := exec.CommandContext(runCtx, "python3", cmdArgs...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return "", fmt.Errorf("%w: script %s exceeded timeout", instrument.ErrTimeout, name)
	}

	if err != nil {
		return "", fmt.Errorf("%w: script %s: %w: %s", instrument.ErrTransport, name, err, stderr.String())
	}

	return stdout.String(), nil
}
