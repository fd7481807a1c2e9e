package cli

import (
	"errors"
	"fmt"

	"github.com/skeinlabs/skein/internal/config"
	"github.com/skeinlabs/skein/internal/engineapi"
)

// resolveRun picks the run id from the --run flag or the config file.
func resolveRun(flagRun string, cfg *config.Config) (string, error) {
	if flagRun != "" {
		return flagRun, nil
	}
	if cfg.Run != "" {
		return cfg.Run, nil
	}
	return "", NewExitError(ExitCommandError, "no run id: pass --run or set run in the config")
}

// ackResult is the JSON payload for an accepted action.
type ackResult struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
	TxID     string `json:"tx_id,omitempty"`
}

// printAck reports an accepted action's engine-echoed id.
func printAck(f *OutputFormatter, ack engineapi.ActionAck) error {
	if f.Format == "json" {
		return f.Success(ackResult{ActionID: ack.ActionID, Status: ack.Status, TxID: ack.TxID})
	}
	if ack.TxID != "" {
		return f.Success(fmt.Sprintf("%s %s (tx %s)", ack.Status, ack.ActionID, ack.TxID))
	}
	return f.Success(fmt.Sprintf("%s %s", ack.Status, ack.ActionID))
}

// actionError converts an engine rejection into CLI output and an exit
// code. Business-rule conflicts surface the engine's message and details
// verbatim and exit with a failure, not a command error.
func actionError(f *OutputFormatter, err error) error {
	var engErr *engineapi.EngineError
	if errors.As(err, &engErr) {
		code := fmt.Sprintf("engine_%d", engErr.Status)
		if engErr.Code != "" {
			code = engErr.Code
		}
		_ = f.Error(code, engErr.Message, engErr.Details)
		if engErr.Conflict() {
			return NewExitError(ExitFailure, engErr.Message)
		}
		return NewExitError(ExitCommandError, engErr.Message)
	}
	return WrapExitError(ExitCommandError, "engine request failed", err)
}
