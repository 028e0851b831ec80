package vcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariusmagureanu/vingress/pkg/backend"
)

func writeTemplate(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "vcl.tmpl")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// Rendering the same ordered input twice yields byte-identical output.
// Order across permutations of one set is backend.Fold's job, not Render's.
func TestRender_Deterministic(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeTemplate(t, dir, `{{range .backend}}{{.Name}} {{.Host}}{{.Path}} :{{.Port}}
{{end}}{{.snippet}}{{.vcl_recv_snippet}}`)
	out := filepath.Join(dir, "default.vcl")

	bs1 := []backend.Backend{{Name: "a"}, {Name: "b"}}
	bs2 := []backend.Backend{{Name: "b"}, {Name: "a"}}

	require.NoError(t, Render(tmpl, TemplateData{Backends: bs1}, out))
	c1, err := os.ReadFile(out)
	require.NoError(t, err)

	require.NoError(t, Render(tmpl, TemplateData{Backends: bs2}, out))
	c2, err := os.ReadFile(out)
	require.NoError(t, err)

	// Same set in different order is NOT guaranteed byte-identical by this
	// package alone -- ordering is the caller's (backend.Fold's)
	// responsibility. What IS guaranteed: rendering the SAME ordered input
	// twice produces byte-identical output (property 2, no-op idempotence).
	require.NoError(t, Render(tmpl, TemplateData{Backends: bs1}, out))
	c3, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, c1, c3)
	_ = c2
}

func TestRender_AtomicOnFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "default.vcl")
	require.NoError(t, os.WriteFile(out, []byte("previous-good-content"), 0o644))

	badTmpl := writeTemplate(t, dir, `{{.nosuchfield.boom}}`)
	err := Render(badTmpl, TemplateData{Backends: []backend.Backend{{Name: "a"}}}, out)
	require.Error(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous-good-content", string(content))
}

func TestRender_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "default.vcl")
	err := Render(filepath.Join(dir, "nope.tmpl"), TemplateData{}, out)
	require.Error(t, err)
	var regErr *TemplateRegisterFailed
	require.ErrorAs(t, err, &regErr)
}
