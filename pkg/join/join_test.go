//nolint:funlen // table driven tests
package join

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

var race = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}

const dist = "dist"

func sec(s int) time.Duration { return time.Duration(s) * time.Second }

func leftRow(t int, v string) *model.Row {
	r := model.NewRow(race, "4")
	r.Time = null.From(sec(t))
	r.Str["v"] = null.From(v)
	return r
}

func rightRow(t int, w string) *model.Row {
	r := model.NewRow(race, "4")
	r.Time = null.From(sec(t))
	r.Times["Time"] = null.From(sec(t))
	r.Str["w"] = null.From(w)
	return r
}

type flat struct {
	V    string
	W    string
	Dist float64
	Null bool
}

func flatten(rows []*model.Row) []flat {
	ret := make([]flat, len(rows))
	for i, r := range rows {
		ret[i].V, _ = r.Text("v")
		ret[i].W, _ = r.Text("w")
		ret[i].Dist, _ = r.Float(dist)
		ret[i].Null = r.IsNull("w")
	}
	return ret
}

func TestNearest(t *testing.T) {
	left := []*model.Row{leftRow(0, "A"), leftRow(10, "B"), leftRow(25, "C")}
	right := []*model.Row{rightRow(1, "X"), rightRow(20, "Y")}
	tests := []struct {
		name  string
		left  []*model.Row
		right []*model.Row
		opts  []Option
		want  []flat
	}{
		{
			name:  "no tolerance",
			left:  left,
			right: right,
			want: []flat{
				{V: "A", W: "X", Dist: 1},
				{V: "B", W: "Y", Dist: 10},
				{V: "C", W: "Y", Dist: 5},
			},
		},
		{
			name:  "tolerance 3",
			left:  left,
			right: right,
			opts:  []Option{WithTolerance(sec(3))},
			want: []flat{
				{V: "A", W: "X", Dist: 1},
				{V: "B", Null: true},
				{V: "C", Null: true},
			},
		},
		{
			name:  "tolerance is inclusive",
			left:  left,
			right: right,
			opts:  []Option{WithTolerance(sec(5))},
			want: []flat{
				{V: "A", W: "X", Dist: 1},
				{V: "B", Null: true},
				{V: "C", W: "Y", Dist: 5},
			},
		},
		{
			name:  "tie goes to earlier row",
			left:  []*model.Row{leftRow(10, "A")},
			right: []*model.Row{rightRow(5, "early"), rightRow(15, "late")},
			want:  []flat{{V: "A", W: "early", Dist: 5}},
		},
		{
			name:  "equal right times use last row",
			left:  []*model.Row{leftRow(10, "A")},
			right: []*model.Row{rightRow(9, "first"), rightRow(9, "second"), rightRow(12, "x")},
			want:  []flat{{V: "A", W: "second", Dist: 1}},
		},
		{
			name:  "equal right times after left use last row",
			left:  []*model.Row{leftRow(5, "A")},
			right: []*model.Row{rightRow(7, "first"), rightRow(7, "second")},
			want:  []flat{{V: "A", W: "second", Dist: 2}},
		},
		{
			name:  "tie with equal later times goes to earlier row",
			left:  []*model.Row{leftRow(5, "A")},
			right: []*model.Row{rightRow(3, "early"), rightRow(7, "late1"), rightRow(7, "late2")},
			want:  []flat{{V: "A", W: "early", Dist: 2}},
		},
		{
			name:  "left before all right rows",
			left:  []*model.Row{leftRow(0, "A"), leftRow(1, "B")},
			right: []*model.Row{rightRow(50, "X"), rightRow(60, "Y")},
			want:  []flat{{V: "A", W: "X", Dist: 50}, {V: "B", W: "X", Dist: 49}},
		},
		{
			name:  "left after all right rows",
			left:  []*model.Row{leftRow(100, "A")},
			right: []*model.Row{rightRow(50, "X"), rightRow(60, "Y")},
			want:  []flat{{V: "A", W: "Y", Dist: 40}},
		},
		{
			name:  "empty left",
			left:  []*model.Row{},
			right: right,
			want:  []flat{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithDistanceColumn(dist)}, tt.opts...)
			got, err := Nearest(tt.left, tt.right, opts...)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, flatten(got)); diff != "" {
				t.Errorf("Nearest() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNearestEmptyRight(t *testing.T) {
	left := []*model.Row{leftRow(0, "A"), leftRow(10, "B")}
	got, err := Nearest(left, nil,
		WithRightColumns(model.Column{Name: "w", Kind: model.CellStr},
			model.Column{Name: "AirTemp", Kind: model.CellNum}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.True(t, r.Has("w"))
		assert.True(t, r.IsNull("w"))
		assert.True(t, r.Has("AirTemp"))
		assert.True(t, r.IsNull("AirTemp"))
		assert.False(t, r.IsNull("v"))
	}
}

func TestNearestNullTimes(t *testing.T) {
	noTime := leftRow(0, "N")
	noTime.Time = null.Val[time.Duration]{}
	rightNoTime := rightRow(0, "ignored")
	rightNoTime.Time = null.Val[time.Duration]{}

	got, err := Nearest(
		[]*model.Row{leftRow(5, "A"), noTime},
		[]*model.Row{rightRow(7, "X"), rightNoTime})
	require.NoError(t, err)
	w, _ := got[0].Text("w")
	assert.Equal(t, "X", w)
	assert.True(t, got[1].Has("w"))
	assert.True(t, got[1].IsNull("w"))
}

func TestNearestLeftWins(t *testing.T) {
	l := leftRow(10, "A")
	l.Times["Time"] = null.From(sec(99))
	got, err := Nearest([]*model.Row{l}, []*model.Row{rightRow(10, "X")})
	require.NoError(t, err)
	v, _ := got[0].Offset("Time")
	assert.Equal(t, sec(99), v)
	w, _ := got[0].Text("w")
	assert.Equal(t, "X", w)
}

func TestNearestProjection(t *testing.T) {
	r := rightRow(10, "X")
	r.Num["AirTemp"] = null.From(21.5)
	got, err := Nearest([]*model.Row{leftRow(10, "A")}, []*model.Row{r},
		WithRightColumns(model.Column{Name: "AirTemp", Kind: model.CellNum}))
	require.NoError(t, err)
	assert.False(t, got[0].Has("w"))
	assert.False(t, got[0].Has("Time"))
	v, _ := got[0].Float("AirTemp")
	assert.InDelta(t, 21.5, v, 1e-12)
}

func TestNearestSchemaConflict(t *testing.T) {
	l := leftRow(10, "A")
	l.Num["w"] = null.From(1.0)
	_, err := Nearest([]*model.Row{l}, []*model.Row{rightRow(10, "X")})
	assert.True(t, errors.Is(err, model.ErrSchemaConflict))
}

func TestNearestIsPure(t *testing.T) {
	left := []*model.Row{leftRow(0, "A")}
	right := []*model.Row{rightRow(1, "X")}
	_, err := Nearest(left, right, WithDistanceColumn(dist))
	require.NoError(t, err)
	assert.False(t, left[0].Has("w"))
	assert.False(t, left[0].Has(dist))
	assert.False(t, right[0].Has("v"))
}

func randomSeries(rng *rand.Rand, n int, mk func(int, string) *model.Row) []*model.Row {
	ret := make([]*model.Row, n)
	for i := range ret {
		ret[i] = mk(rng.IntN(500), string(rune('a'+i%26)))
	}
	return ret
}

func TestSortAndJoinIsShuffleInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	left := randomSeries(rng, 50, leftRow)
	right := randomSeries(rng, 30, rightRow)

	want, err := SortAndJoin(left, right, WithDistanceColumn(dist))
	require.NoError(t, err)
	for range 5 {
		shuffled := append([]*model.Row{}, right...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := SortAndJoin(left, shuffled, WithDistanceColumn(dist))
		require.NoError(t, err)
		// the matched distance is unique even if the matched row differs between equal times
		gotDist := make([]float64, len(got))
		wantDist := make([]float64, len(want))
		for i := range got {
			gotDist[i], _ = got[i].Float(dist)
			wantDist[i], _ = want[i].Float(dist)
		}
		assert.Equal(t, wantDist, gotDist)
	}
	// result keeps the left input order
	for i := range left {
		v, _ := want[i].Text("v")
		lv, _ := left[i].Text("v")
		assert.Equal(t, lv, v)
	}
}

// a left row is null iff the true minimal distance exceeds the tolerance
func TestToleranceProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tol := sec(7)
	left := randomSeries(rng, 80, leftRow)
	right := randomSeries(rng, 20, rightRow)
	got, err := SortAndJoin(left, right, WithTolerance(tol), WithDistanceColumn(dist))
	require.NoError(t, err)
	for i, l := range left {
		lt := l.Time.GetOrZero()
		minDist := time.Duration(1<<63 - 1)
		for _, r := range right {
			minDist = min(minDist, absDuration(r.Time.GetOrZero()-lt))
		}
		assert.Equal(t, minDist > tol, got[i].IsNull("w"), "left %d at %s", i, lt)
		if !got[i].IsNull("w") {
			d, _ := got[i].Float(dist)
			assert.InDelta(t, minDist.Seconds(), d, 1e-9)
		}
	}
}

// without tolerance every left row is matched when the right side has rows
func TestNoToleranceAlwaysMatches(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	got, err := SortAndJoin(randomSeries(rng, 40, leftRow), randomSeries(rng, 3, rightRow))
	require.NoError(t, err)
	for _, r := range got {
		assert.False(t, r.IsNull("w"))
	}
}
