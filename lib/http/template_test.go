package http

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTemplateDefault(t *testing.T) {
	tpl, err := GetTemplate("")
	require.NoError(t, err)

	type entry struct {
		URL     string
		Leaf    string
		IsDir   bool
		Size    int64
		ModTime time.Time
	}
	data := struct {
		DirRemote string
		Title     string
		Sort      string
		Order     string
		Entries   []entry
	}{
		DirRemote: "models",
		Title:     "Directory listing of /models",
		Sort:      "name",
		Order:     "asc",
		Entries: []entry{
			{URL: "sub/", Leaf: "sub/", IsDir: true},
			{URL: "model.glb", Leaf: "model.glb", Size: 1536, ModTime: time.Date(2023, 9, 20, 12, 11, 15, 0, time.UTC)},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, tpl.Execute(&buf, data))
	out := buf.String()
	assert.Contains(t, out, "<title>Directory listing of /models</title>")
	assert.Contains(t, out, `<a href="sub/">sub/</a>`)
	assert.Contains(t, out, `<a href="model.glb">model.glb</a>`)
	assert.Contains(t, out, "1.5 KiB")
	assert.Contains(t, out, "2023-09-20 12:11:15")
	assert.Contains(t, out, `<a href="../">../</a>`)
	assert.Contains(t, out, `?sort=name&amp;order=desc`)
}

func TestGetTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.html")
	require.NoError(t, os.WriteFile(path, []byte(`{{ .Title }}|{{ humanizeBytes 2048 }}`), 0o600))
	tpl, err := GetTemplate(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tpl.Execute(&buf, struct{ Title string }{"hello"}))
	assert.Equal(t, "hello|2.0 KiB", buf.String())

	_, err = GetTemplate(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.html")
	require.NoError(t, os.WriteFile(bad, []byte(`{{ .Title `), 0o600))
	_, err = GetTemplate(bad)
	assert.Error(t, err)
}

func TestAfterEpoch(t *testing.T) {
	assert.False(t, AfterEpoch(time.Time{}))
	assert.True(t, AfterEpoch(time.Unix(0, 0)))
}

func TestHumanizeBytes(t *testing.T) {
	assert.Equal(t, "0 B", HumanizeBytes(0))
	assert.Equal(t, "5 B", HumanizeBytes(5))
	assert.Equal(t, "1.0 KiB", HumanizeBytes(1024))
	assert.Equal(t, "", HumanizeBytes(-1))
}
