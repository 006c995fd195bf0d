package timetable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/textwipe/internal/types"
)

var regions = []types.Region{
	{X1: 0, X2: 100, Y1: 0, Y2: 40, Label: "top"},
	{X1: 0, X2: 100, Y1: 200, Y2: 240, Label: "bottom"},
}

const script = `[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:02.00,top,,0,0,0,,hi
Dialogue: 0,0:00:03.00,0:00:03.50,bottom-fadeout,,0,0,0,,bye
Dialogue: 0,0:00:00.00,0:00:09.00,title,,0,0,0,,unmatched
`

func TestFromASS(t *testing.T) {
	tt, err := FromASS(strings.NewReader(script), regions, 10, 100)
	require.NoError(t, err)

	assert.False(t, tt.Active(0, 9))
	assert.True(t, tt.Active(0, 10))
	assert.True(t, tt.Active(0, 20))
	assert.False(t, tt.Active(0, 21))

	assert.True(t, tt.Active(1, 30))
	assert.True(t, tt.Active(1, 35))
	assert.False(t, tt.Active(1, 36))
	assert.False(t, tt.Active(0, 30), "fadeout style must not leak into other regions")
	assert.True(t, tt.Fading(1, 30))
	assert.False(t, tt.Fading(0, 10))
}

func TestFromASS_RequiresLabels(t *testing.T) {
	_, err := FromASS(strings.NewReader(script), []types.Region{{X2: 10, Y2: 10}}, 10, 100)
	assert.Error(t, err)

	_, err = FromASS(strings.NewReader(script), regions, 0, 100)
	assert.Error(t, err)
}

func TestFromYAML(t *testing.T) {
	src := `
top:
  - {start: 0, end: 4}
bottom:
  - {start_sec: 1.0, end_sec: 1.5}
`
	tt, err := FromYAML(strings.NewReader(src), regions, 10, 50)
	require.NoError(t, err)
	assert.True(t, tt.Active(0, 4))
	assert.False(t, tt.Active(0, 5))
	assert.True(t, tt.Active(1, 10))
	assert.True(t, tt.Active(1, 15))
	assert.False(t, tt.Active(1, 16))

	_, err = FromYAML(strings.NewReader("side:\n  - {start: 0, end: 1}\n"), regions, 10, 50)
	assert.Error(t, err)

	_, err = FromYAML(strings.NewReader("top:\n  - {start: 5, end: 1}\n"), regions, 10, 50)
	assert.Error(t, err)
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()
	ass := filepath.Join(dir, "timing.ass")
	require.NoError(t, os.WriteFile(ass, []byte(script), 0o644))

	tt, err := Load(ass, regions, 10, 100)
	require.NoError(t, err)
	assert.True(t, tt.Active(0, 15))

	txt := filepath.Join(dir, "timing.txt")
	require.NoError(t, os.WriteFile(txt, []byte(script), 0o644))
	_, err = Load(txt, regions, 10, 100)
	assert.Error(t, err)
}
