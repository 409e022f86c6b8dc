package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"taptimise/internal/integrations"
	"taptimise/internal/opt"
)

func fetch(t *testing.T, a Adapter) integrations.Batch {
	t.Helper()
	b, err := a.Fetch(context.Background())
	require.NoError(t, err)
	return b
}

func TestPositionalRows(t *testing.T) {
	in := "\xef\xbb\xbf0,0,3\n10, 0, 4, 25\n"
	b := fetch(t, Adapter{Reader: strings.NewReader(in)})
	require.Equal(t, []opt.Point{
		{X: 0, Y: 0, Demand: 3},
		{X: 10, Y: 0, Demand: 4, MaxDistance: 25},
	}, b.Points)
	require.Empty(t, b.Skipped)
	require.False(t, b.Geodetic)
}

func TestHeaderReordersColumns(t *testing.T) {
	in := "demand,y,x\n2,5,6\n"
	b := fetch(t, Adapter{Reader: strings.NewReader(in)})
	require.Equal(t, []opt.Point{{X: 6, Y: 5, Demand: 2}}, b.Points)
}

func TestSkipsBadRowsWithReasons(t *testing.T) {
	in := strings.Join([]string{
		"1,1,1",
		"2,abc,1",
		"3,3",
		"4,4,-2",
		"# comment",
		"5,5,5",
	}, "\n")
	b := fetch(t, Adapter{Reader: strings.NewReader(in)})
	require.Len(t, b.Points, 2)
	require.Len(t, b.Skipped, 3)
	require.Equal(t, 2, b.Skipped[0].Row)
	require.Contains(t, b.Skipped[0].Reason, "bad y")
	require.Equal(t, 3, b.Skipped[1].Row)
	require.Contains(t, b.Skipped[1].Reason, "missing demand")
	require.Equal(t, 4, b.Skipped[2].Row)
	require.Contains(t, b.Skipped[2].Reason, "demand")
}

func TestGeodeticLatLonOrder(t *testing.T) {
	b := fetch(t, Adapter{Reader: strings.NewReader("-1.29,36.82,4\n"), Geodetic: true})
	require.True(t, b.Geodetic)
	require.Equal(t, 36.82, b.Points[0].X)
	require.Equal(t, -1.29, b.Points[0].Y)

	proj, ok := b.Project()
	require.True(t, ok)
	require.InDelta(t, 0, b.Points[0].X, 1e-6)
	require.InDelta(t, -1.29, proj.Lat0, 1e-12)
}

func TestFromFileAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houses.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y,demand\n1,2,3\n"), 0o600))
	b := fetch(t, Adapter{Path: path})
	require.Len(t, b.Points, 1)

	_, err := Adapter{Path: filepath.Join(t.TempDir(), "missing.csv")}.Fetch(context.Background())
	require.Error(t, err)

	_, err = Adapter{Reader: strings.NewReader("x,y,demand\n")}.Fetch(context.Background())
	require.ErrorIs(t, err, integrations.ErrNoRows)
}
