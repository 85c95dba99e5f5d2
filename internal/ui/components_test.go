package ui

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileManagerPage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := FileManagerPage(Page{Title: "Team <Files>"}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "<!DOCTYPE html>")
	require.Contains(t, out, "<title>Team &lt;Files&gt;</title>")
	require.NotContains(t, out, "<Files>")
	require.Contains(t, out, "id=\"entries\"")
	require.Contains(t, out, "x-auth-password")
	require.Contains(t, out, "/api/list")
	require.Contains(t, out, "</body></html>")
}
