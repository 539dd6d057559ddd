package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunRender_Text(t *testing.T) {
	path := writeFile(t, "rules.sh", "iptables -A INPUT -j DROP --dport 22 -p tcp\nbroken line\n")

	var stdout, stderr bytes.Buffer
	require.NoError(t, RunRender([]string{"-file", path}, &stdout, &stderr))

	assert.Equal(t, "iptables -F\niptables -P INPUT ACCEPT\n\n# INPUT chain rules\niptables -A INPUT -p tcp --dport 22 -j DROP\n\n", stdout.String())
	assert.Contains(t, stderr.String(), "line 2")
}

func TestRunRender_Formats(t *testing.T) {
	path := writeFile(t, "rules.sh", "-A FORWARD -j ACCEPT\n")

	var stdout bytes.Buffer
	require.NoError(t, RunRender([]string{"-type", "ip6tables", "-device", "core", "-format", "yaml", path}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "firewall_type: ip6tables")
	assert.Contains(t, stdout.String(), "device_name: core")

	stdout.Reset()
	require.NoError(t, RunRender([]string{"-format", "json", path}, &stdout, &bytes.Buffer{}))
	assert.True(t, strings.HasPrefix(stdout.String(), "{"))
	assert.Contains(t, stdout.String(), `"FORWARD"`)

	assert.Error(t, RunRender([]string{"-format", "xml", path}, &stdout, &bytes.Buffer{}))
	assert.Error(t, RunRender([]string{"-type", "nft", path}, &stdout, &bytes.Buffer{}))
}

func TestRunRender_Strict(t *testing.T) {
	path := writeFile(t, "rules.sh", "-A INPUT -j ACCEPT\nwhat\n")
	err := RunRender([]string{"-strict", path}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRunDiff(t *testing.T) {
	// Same rules, different spelling: canonical forms match.
	a := writeFile(t, "a.sh", "-A INPUT -p tcp --dport 22 -j ACCEPT\n")
	b := writeFile(t, "b.sh", "iptables -A INPUT -j ACCEPT --dport 22 -p tcp\n")
	var stdout, stderr bytes.Buffer
	require.NoError(t, RunDiff([]string{"-no-color", a, b}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "no differences")

	c := writeFile(t, "c.sh", "-A INPUT -p tcp --dport 2222 -j ACCEPT\n")
	stdout.Reset()
	stderr.Reset()
	err := RunDiff([]string{"-no-color", a, c}, &stdout, &stderr)
	assert.True(t, errors.Is(err, ErrDiffers))
	assert.Contains(t, stdout.String(), "-iptables -A INPUT -p tcp --dport 22 -j ACCEPT\n")
	assert.Contains(t, stdout.String(), "+iptables -A INPUT -p tcp --dport 2222 -j ACCEPT\n")
	assert.Contains(t, stderr.String(), "1 lines added, 1 removed")

	stdout.Reset()
	err = RunDiff([]string{"-unified", "-no-color", a, c}, &stdout, &bytes.Buffer{})
	assert.True(t, errors.Is(err, ErrDiffers))
	assert.Contains(t, stdout.String(), "--- "+a)
	assert.Contains(t, stdout.String(), "@@")

	assert.Error(t, RunDiff([]string{a}, &stdout, &stderr))
}
