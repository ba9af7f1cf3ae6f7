/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteapi.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  environment: development
api:
  contact:
    webhookURL: https://hooks.example.com/leads
    webhookToken: s3cr3t
`), 0o600))

	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	require.NoError(t, cmd.Run(context.Background(), []string{"siteapi", "--config", path, "check-config"}))

	var printed map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	require.Equal(t, "development", printed["App"].(map[string]interface{})["environment"])
	require.Contains(t, out.String(), "https://hooks.example.com/leads")
	require.Contains(t, out.String(), `"rate": "5/m"`)
	require.NotContains(t, out.String(), "s3cr3t")
}

func TestCheckConfigCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteapi.yml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  environment: staging\n"), 0o600))

	cmd := newCommand()
	cmd.Writer = &bytes.Buffer{}
	err := cmd.Run(context.Background(), []string{"siteapi", "check-config", "--config", path})
	require.ErrorContains(t, err, "app.environment")
}
