package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	err := app.Run(context.Background(), append([]string{"finpwa", "--config", ""}, args...))
	return out.String(), err
}

func TestCalcCommand(t *testing.T) {
	out, err := run(t, "", "calc", "--currency", "USD", "compound", `{"principal":1000,"rate":5,"years":10}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"display": "$1,628.89"`)
}

func TestCalcCommandReadsStdin(t *testing.T) {
	out, err := run(t, `{"weights":[25,25,25,25]}`, "calc", "diversification")
	require.NoError(t, err)
	assert.Contains(t, out, `"level": "high"`)
}

func TestCalcCommandListsCalculators(t *testing.T) {
	out, err := run(t, "", "calc")
	require.NoError(t, err)
	assert.Contains(t, out, "mortgage\n")
	assert.Contains(t, out, "retirement\n")
}

func TestCalcCommandErrors(t *testing.T) {
	_, err := run(t, "", "calc", "black-scholes", "{}")
	assert.ErrorContains(t, err, "unknown calculator")

	_, err = run(t, "", "calc", "volatility", `{"returns":[0.1]}`)
	assert.ErrorContains(t, err, "insufficient data")
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "origin: http://localhost:8080")
	assert.Contains(t, out, "static_partition: static-v2")
}

func TestPartitionsCommandOnEmptyMemoryStorage(t *testing.T) {
	out, err := run(t, "", "partitions", "--prune")
	require.NoError(t, err)
	assert.Empty(t, out)
}
