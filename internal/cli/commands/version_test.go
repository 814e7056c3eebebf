package commands

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeVersion(t *testing.T, info VersionInfo, args ...string) string {
	t.Helper()
	cmd := NewVersionCommand(info)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		info    VersionInfo
		wantOut []string
	}{
		{
			name:    "release build",
			info:    VersionInfo{Version: "1.2.3", GitCommit: "abc1234", BuildDate: "2026-01-02"},
			wantOut: []string{"chatbatch v1.2.3", "commit: abc1234", "built:  2026-01-02", runtime.Version()},
		},
		{
			name:    "dev build",
			info:    VersionInfo{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
			wantOut: []string{"chatbatch vdev", "commit: unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := executeVersion(t, tt.info)
			for _, want := range tt.wantOut {
				assert.Contains(t, output, want)
			}
		})
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	output := executeVersion(t, VersionInfo{Version: "1.2.3", GitCommit: "abc1234", BuildDate: "2026-01-02"}, "--json")

	var got VersionInfo
	require.NoError(t, json.Unmarshal([]byte(output), &got))
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, "abc1234", got.GitCommit)
	assert.Equal(t, "2026-01-02", got.BuildDate)
	assert.Equal(t, runtime.Version(), got.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got.Platform)
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand(VersionInfo{Version: "test"})
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.Flags().Lookup("json"))
}
