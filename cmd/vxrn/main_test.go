package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/output"
)

func TestMain(m *testing.M) {
	cmd.Out = output.NewTest(io.Discard)
	os.Exit(m.Run())
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"bundle", "patch", "dev", "version"} {
		t.Run(name, func(t *testing.T) {
			c, _, err := cmd.RootCmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	old := cmd.Out
	cmd.Out = output.NewTest(&buf)
	defer func() { cmd.Out = old }()

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "vxrn "+version)
	assert.Contains(t, buf.String(), "commit: none")
}
