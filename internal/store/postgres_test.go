package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taptimise/internal/model"
	"taptimise/internal/opt"
)

func TestNullIfEmpty(t *testing.T) {
	require.Nil(t, nullIfEmpty(""))
	require.Equal(t, "x", nullIfEmpty("x"))
}

func TestJSONArg(t *testing.T) {
	v, err := jsonArg((*model.Origin)(nil))
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = jsonArg((*opt.Result)(nil))
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = jsonArg(&model.Origin{Lat: 1, Lon: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"lat":1,"lon":2}`, v.(string))
}

type fakeRow struct{ vals []any }

func (f fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *[]byte:
			if f.vals[i] != nil {
				*p = []byte(f.vals[i].(string))
			}
		default:
		}
	}
	return nil
}

func TestScanRunDecodesJSONColumns(t *testing.T) {
	row := fakeRow{vals: []any{
		"id1", model.StatusDone, nil,
		`{"points":[{"x":1,"y":2,"demand":3}],"capacity":5}`,
		`{"lat":51.5,"lon":-0.1}`,
		`{"houses":[],"taps":[{"x":1,"y":2,"index":0,"load":3,"loadFraction":0.6,"houses":1}],"energy":4}`,
		nil, nil, nil,
	}}
	r, err := scanRun(row)
	require.NoError(t, err)
	require.Equal(t, "id1", r.ID)
	require.Len(t, r.Request.Points, 1)
	require.Equal(t, 5.0, r.Request.Capacity)
	require.NotNil(t, r.Origin)
	require.InDelta(t, 51.5, r.Origin.Lat, 1e-12)
	require.NotNil(t, r.Result)
	require.Len(t, r.Result.Taps, 1)
	require.Equal(t, 4.0, r.Result.Energy)
}

func TestScanRunNullResult(t *testing.T) {
	row := fakeRow{vals: []any{"id2", model.StatusQueued, nil, `{"points":[],"capacity":1}`, nil, nil, nil, nil, nil}}
	r, err := scanRun(row)
	require.NoError(t, err)
	require.Nil(t, r.Origin)
	require.Nil(t, r.Result)
}
