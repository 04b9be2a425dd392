package pipe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptFramesGolden(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always), WithResponseID("golden"))
	ctx := context.Background()

	header, err := e.NewPagelet(ctx, "header", Static("<h1>Hi</h1>"), WithPriority(20))
	require.NoError(t, err)
	header.AddCSS("a.css")

	body, err := e.NewPagelet(ctx, "body", Static("body"))
	require.NoError(t, err)
	body.AddInlineScript("x=1;")

	require.NoError(t, e.Finalize(ctx, nil))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "script_frames", buf.Bytes())
}

func TestScriptFramesEscapesMarkup(t *testing.T) {
	var buf bytes.Buffer
	err := ScriptFrames{}.EncodeFrame(&buf, 7, Payload{
		ID:        "evil",
		InnerHTML: `</script><script>alert(1)</script>`,
		CSSFiles:  []string{},
		JSFiles:   []string{},
		JSCode:    `if (a < b && c > d) {}`,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<script id="evil_7">BigPipe.onArrive({`))
	assert.True(t, strings.HasSuffix(out, "});</script>\n"))
	assert.Equal(t, 1, strings.Count(out, "</script>"), "payload must not close the frame element")
	assert.NotContains(t, out, "&&")
	assert.Contains(t, out, `\u003c/script\u003e`)
}

func TestScriptFramesEscapesID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ScriptFrames{}.EncodeFrame(&buf, 1, Payload{ID: `a"b`}))
	assert.True(t, strings.HasPrefix(buf.String(), `<script id="a&quot;b_1">`))
}

func TestJSONFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := JSONFrames{}
	require.NoError(t, enc.EncodeFrame(&buf, 1, Payload{ID: "a", InnerHTML: "x", CSSFiles: []string{}, JSFiles: []string{}, IsLast: true}))
	require.NoError(t, enc.EncodeEnd(&buf))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &p))
	assert.Equal(t, "a", p.ID)
	assert.True(t, p.IsLast)
	assert.JSONEq(t, `{"end":true}`, lines[1])
}

func TestPayloadOmitsIsLastWhenFalse(t *testing.T) {
	data, err := json.Marshal(Payload{ID: "a", CSSFiles: []string{}, JSFiles: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a","innerHTML":"","cssFiles":[],"jsFiles":[],"jsCode":""}`, string(data))
}
