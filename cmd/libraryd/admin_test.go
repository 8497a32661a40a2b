package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPasswordFromPipe(t *testing.T) {
	password, err := readPassword(strings.NewReader("  hunter2 \nignored\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	password, err = readPassword(strings.NewReader("no-newline"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "no-newline", password)

	_, err = readPassword(strings.NewReader("\n"), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "create-admin"}, names)

	createAdmin, _, err := root.Find([]string{"create-admin"})
	require.NoError(t, err)
	assert.NotNil(t, createAdmin.Flags().Lookup("email"))
}
