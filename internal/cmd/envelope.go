package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

const schemaVersion = 1

// envelope is the stable JSON shape every `--json` invocation emits (spec
// §6): exactly one of Data or Error is populated.
type envelope struct {
	SchemaVersion int            `json:"schema_version"`
	Command       string         `json:"command"`
	Project       string         `json:"project"`
	Data          any            `json:"data,omitempty"`
	Error         *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// renderable is implemented by command result types that know how to print
// themselves as a table via internal/style.
type renderable interface {
	Render() string
}

// emit writes either a success or error envelope/table for name, and
// records the process exit code (spec §7) for Execute to return.
func emit(cmd *cobra.Command, name string, data any, err error) {
	if err != nil {
		exitStatus = exitCodeFor(err)
		if jsonOutput {
			writeJSON(cmd, envelope{
				SchemaVersion: schemaVersion,
				Command:       name,
				Project:       projectName,
				Error:         &envelopeError{Code: errorCode(err), Message: err.Error()},
			})
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", err.Error())
		return
	}

	if jsonOutput {
		writeJSON(cmd, envelope{
			SchemaVersion: schemaVersion,
			Command:       name,
			Project:       projectName,
			Data:          data,
		})
		return
	}

	if r, ok := data.(renderable); ok {
		fmt.Fprint(cmd.OutOrStdout(), r.Render())
		return
	}
	if data != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", data)
	}
}

func writeJSON(cmd *cobra.Command, env envelope) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(env)
}
