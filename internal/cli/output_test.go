package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/prova/internal/errs"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
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

	err := formatter.Error("CORRUPT_ARCHIVE", "data.json missing", map[string]string{"field": "data.json"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CORRUPT_ARCHIVE", resp.Error.Code)
	assert.Equal(t, "data.json missing", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_YAMLSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "yaml",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(map[string]int{"nodes": 3}))

	var resp struct {
		Status string         `yaml:"status"`
		Data   map[string]int `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data["nodes"])
}

type summary struct{ n int }

func (s summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d things\n", s.n)
	return err
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	t.Run("plain value", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Success("archive valid"))
		assert.Equal(t, "archive valid\n", buf.String())
	})

	t.Run("text writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Success(summary{n: 2}))
		assert.Equal(t, "2 things\n", buf.String())
	})
}

func TestOutputFormatter_TextError(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    out,
		ErrWriter: errOut,
	}

	require.NoError(t, formatter.Error("LICENSING_ERROR", "node has license GPL", map[string]string{"uuid": "x"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [LICENSING_ERROR]: node has license GPL")
	assert.NotContains(t, errOut.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error("LICENSING_ERROR", "node has license GPL", map[string]string{"uuid": "x"}))
	assert.Contains(t, buf.String(), "Error [LICENSING_ERROR]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Reading %s", "relax.tar.gz")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Reading relax.tar.gz")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitFailure, "refused"), ExitFailure},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad", io.EOF)), ExitCommandError},
		{"licensing", errs.New(errs.LicensingError, "GPL"), ExitFailure},
		{"export", errs.New(errs.ExportError, "too large"), ExitFailure},
		{"version", errs.New(errs.UnsupportedFormatVersion, "v9"), ExitFailure},
		{"corrupt", errs.New(errs.CorruptArchive, "bad tar"), ExitFailure},
		{"integrity", errs.New(errs.GraphIntegrityError, "cycle"), ExitFailure},
		{"invalid argument", errs.New(errs.InvalidArgument, "no seeds"), ExitCommandError},
		{"not found", errs.New(errs.NotFound, "node"), ExitCommandError},
		{"io", errs.New(errs.IOError, "disk"), ExitCommandError},
		{"plain", io.ErrUnexpectedEOF, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestErrorCodeAndDetails(t *testing.T) {
	err := errs.New(errs.CorruptArchive, "dangling link").WithUUID("abc").WithField("links")
	assert.Equal(t, "CORRUPT_ARCHIVE", errorCode(err))
	assert.Equal(t, map[string]string{"uuid": "abc", "field": "links"}, errorDetails(err))

	assert.Equal(t, "COMMAND_ERROR", errorCode(io.EOF))
	assert.Nil(t, errorDetails(io.EOF))
	assert.Nil(t, errorDetails(errs.New(errs.IOError, "disk")))
}

func TestExitError(t *testing.T) {
	err := WrapExitError(ExitFailure, "export refused", io.EOF)
	assert.Equal(t, "export refused: EOF", err.Error())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}
