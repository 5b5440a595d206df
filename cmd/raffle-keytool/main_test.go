package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/crypto"
	"github.com/alanyoungcy/ticketraffle/internal/server/middleware"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestRun_Usage(t *testing.T) {
	assert.Error(t, run(nil, nil, &bytes.Buffer{}))
	assert.Error(t, run([]string{"frobnicate"}, nil, &bytes.Buffer{}))
}

func TestRun_Generate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"generate"}, nil, &out))
	assert.Contains(t, out.String(), "address:     0x")
	assert.Contains(t, out.String(), "private key: ")
}

func TestRun_EncryptThenAddress(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")

	var out bytes.Buffer
	require.NoError(t, run([]string{"encrypt", "--out", path, "--password", "hunter2"},
		strings.NewReader(testKey+"\n"), &out))

	out.Reset()
	require.NoError(t, run([]string{"address", "--key-file", path, "--password", "hunter2"}, nil, &out))
	assert.Equal(t, signer.Address().Hex(), strings.TrimSpace(out.String()))

	assert.Error(t, run([]string{"address", "--key-file", path, "--password", "wrong"}, nil, &out))
}

func TestRun_SignVerifies(t *testing.T) {
	body := `{"count":2}`
	var out bytes.Buffer
	require.NoError(t, run([]string{"sign", "--key", testKey, "--path", "/api/tickets", "--body", body}, nil, &out))

	var headers map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &headers))
	ts, err := strconv.ParseInt(headers[middleware.HeaderTimestamp], 10, 64)
	require.NoError(t, err)

	got, err := crypto.RecoverRequest("POST", "/api/tickets", ts, []byte(body), headers[middleware.HeaderSignature])
	require.NoError(t, err)
	assert.Equal(t, headers[middleware.HeaderAddress], got.Hex())
}
