package apply

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"tckvault/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const liveYAML = `
components:
  - name: A
    type: Sink
    kind: Algorithm
    properties:
      - {key: p, value: "5"}
      - {key: p2, value: "@B.q"}
  - name: B
    type: Svc
`

func TestLoadDirectory(t *testing.T) {
	d, err := LoadDirectory(strings.NewReader(liveYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, d.Names())
	assert.Equal(t, "5", mustGet(t, d, "A", "p"))
	assert.Equal(t, "@B.q", mustGet(t, d, "A", "p2"))

	desc, ok := d.Describe("B")
	require.True(t, ok)
	assert.Equal(t, "Svc", desc.Type)
	assert.Equal(t, core.KindUnknown, desc.Kind)
	assert.Empty(t, desc.Properties)
}

func TestLoadDirectory_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad kind": "components:\n  - {name: A, type: T, kind: Robot}\n",
		"no name":  "components:\n  - {type: T}\n",
		"not yaml": "components: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDirectory(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	d, err := LoadDirectory(strings.NewReader(""))
	require.NoError(t, err, "an empty snapshot is an empty directory")
	assert.Empty(t, d.Names())
}

func TestMemoryDirectory_SaveRoundTrip(t *testing.T) {
	d, err := LoadDirectory(strings.NewReader(liveYAML))
	require.NoError(t, err)
	require.NoError(t, d.Set("B", "q", "7"))

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf))

	back, err := LoadDirectory(&buf)
	require.NoError(t, err)
	for _, name := range d.Names() {
		want, _ := d.Describe(name)
		got, ok := back.Describe(name)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestMemoryDirectory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	d, err := LoadDirectory(strings.NewReader(liveYAML))
	require.NoError(t, err)

	require.NoError(t, d.SetProperties(ctx, "A"))
	require.NoError(t, d.SetProperties(ctx, "A"))
	require.NoError(t, d.Reinitialize(ctx, "B"))
	assert.ErrorIs(t, d.SetProperties(ctx, "Nobody"), ErrComponentNotFound)
	assert.ErrorIs(t, d.Reinitialize(ctx, "Nobody"), ErrComponentNotFound)

	// 计数随快照保存
	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf))
	assert.Contains(t, buf.String(), "applied: 2")

	back, err := LoadDirectory(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Applied("A"))
	assert.Equal(t, 0, back.Reinitialized("A"))
	assert.Equal(t, 1, back.Reinitialized("B"))
	assert.Equal(t, 0, back.Applied("Nobody"))
}

func TestMemoryDirectory_Set(t *testing.T) {
	d := NewMemoryDirectory()
	d.Register("A", "T", core.KindTool, core.Property{Key: "x", Value: "1"})

	require.NoError(t, d.Set("A", "x", "2"))
	require.NoError(t, d.Set("A", "y", "3"))
	assert.ErrorIs(t, d.Set("Nope", "x", "1"), ErrComponentNotFound)

	desc, _ := d.Describe("A")
	assert.Equal(t, []core.Property{{Key: "x", Value: "2"}, {Key: "y", Value: "3"}}, desc.Properties)
	assert.Equal(t, 2, d.Sets())
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in      string
		want    reference
		wantErr bool
	}{
		{in: "@A.p", want: reference{component: "A", key: "p"}},
		{in: "@A.p@99", want: reference{component: "A", key: "p", def: "99", hasDefault: true}},
		{in: "@A.p@", want: reference{component: "A", key: "p", hasDefault: true}},
		{in: "@Hlt.Env.path", want: reference{component: "Hlt.Env", key: "path"}},
		{in: "@A.p@x@y", want: reference{component: "A", key: "p", def: "x@y", hasDefault: true}},
		{in: "@A", wantErr: true},
		{in: "@.p", wantErr: true},
		{in: "@A.", wantErr: true},
		{in: "A.p", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseReference(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
