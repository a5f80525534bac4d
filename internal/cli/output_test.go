package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfergile/journal-starter/internal/config"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"iterations": 3})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("PROD_REFUSED", "refusing to run", map[string]string{"base_url": "https://x.onrender.com"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PROD_REFUSED", resp.Error.Code)
	assert.Equal(t, "refusing to run", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("COMMAND_ERROR", "failed to open database", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [COMMAND_ERROR]: failed to open database")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("COMMAND_ERROR", "failed to open database", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestErrorCode(t *testing.T) {
	prod := &config.ConfigError{Code: config.ErrCodeProdRefused, Message: "no"}

	assert.Equal(t, "PROD_REFUSED", ErrorCode(WrapExitError(ExitCommandError, "refusing to run", prod)))
	assert.Equal(t, "THRESHOLDS_FAILED", ErrorCode(NewExitError(ExitFailure, "thresholds failed")))
	assert.Equal(t, "COMMAND_ERROR", ErrorCode(NewExitError(ExitCommandError, "bad db")))
	assert.Equal(t, "COMMAND_ERROR", ErrorCode(errors.New("unknown flag: --nope")))
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "failed to open database: disk full", err.Error())
}
