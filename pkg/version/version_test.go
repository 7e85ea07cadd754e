package version

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKey   string
		wantStr   string
		expectErr bool
	}{
		{name: "major only", input: "1", wantKey: "0001.0000.0000", wantStr: "1.0.0"},
		{name: "major minor", input: "1.2", wantKey: "0001.0002.0000", wantStr: "1.2.0"},
		{name: "full", input: "10.20.30", wantKey: "0010.0020.0030", wantStr: "10.20.30"},
		{name: "qualifier is upper-cased", input: "3.1.4-rc1", wantKey: "0003.0001.0004-RC1", wantStr: "3.1.4-RC1"},
		{name: "surrounding whitespace trimmed", input: "  2.0 ", wantKey: "0002.0000.0000", wantStr: "2.0.0"},
		{name: "oversized minor dropped", input: "1.10000.5", wantKey: "0001.0000.0005", wantStr: "1.0.5"},
		{name: "oversized build dropped", input: "1.2.99999999999999999999", wantKey: "0001.0002.0000", wantStr: "1.2.0"},
		{name: "maximum accepted", input: "9999.9999.9999", wantKey: "9999.9999.9999", wantStr: "9999.9999.9999"},
		{name: "oversized major", input: "10000.1", expectErr: true},
		{name: "empty", input: "", expectErr: true},
		{name: "non numeric major", input: "a.1", expectErr: true},
		{name: "non numeric build", input: "1.2.x", expectErr: true},
		{name: "empty component", input: "1..2", expectErr: true},
		{name: "too many components", input: "1.2.3.4", expectErr: true},
		{name: "forbidden comma", input: "1,2", expectErr: true},
		{name: "forbidden bracket", input: "[1.0", expectErr: true},
		{name: "forbidden backslash", input: "1.0\\x", expectErr: true},
		{name: "whitespace in qualifier", input: "1.0-beta 2", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, v.Key())
			assert.Equal(t, tt.wantStr, v.String())
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{"0", "1", "1.2", "1.2.3", "7.0.1-snapshot", "9999.0.9999-X", "4.5.6-Beta.2"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := MustParse(in)
			second, err := Parse(first.String())
			require.NoError(t, err)
			assert.Equal(t, first.Key(), second.Key())
			assert.True(t, first.Equal(second))
		})
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	versions := []PlatformVersion{
		MustParse("1.0.0"),
		MustParse("1.0.0-ALPHA"),
		MustParse("1.0.0-beta"),
		MustParse("1"),
		MustParse("0.9999.9999"),
		MustParse("1.0.1"),
		MustParse("2"),
		MustParse("1.10"),
		MustParse("1.9.9999"),
	}

	for _, a := range versions {
		for _, b := range versions {
			lt, eq, gt := a.LessThan(b), a.Equal(b), a.GreaterThan(b)
			count := 0
			for _, x := range []bool{lt, eq, gt} {
				if x {
					count++
				}
			}
			assert.Equal(t, 1, count, "exactly one relation must hold for %s and %s", a, b)
			assert.Equal(t, -b.Compare(a), a.Compare(b))

			for _, c := range versions {
				if a.LessThan(b) && b.LessThan(c) {
					assert.True(t, a.LessThan(c), "%s < %s < %s", a, b, c)
				}
			}
		}
	}

	sorted := make([]PlatformVersion, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	got := make([]string, 0, len(sorted))
	for _, v := range sorted {
		got = append(got, v.String())
	}
	assert.Equal(t, []string{
		"0.9999.9999", "1.0.0", "1.0.0", "1.0.0-ALPHA", "1.0.0-BETA",
		"1.0.1", "1.9.9999", "1.10.0", "2.0.0",
	}, got)
}

func TestQualifierSortsAfterPlainVersion(t *testing.T) {
	assert.True(t, MustParse("1.0.0-a").GreaterThan(MustParse("1.0.0")))
	assert.True(t, MustParse("1.0.0-abc").Equal(MustParse("1.0.0-ABC")))
	assert.True(t, MustParse("1.0.0-zzz").LessThan(MustParse("1.0.1")))
}

func TestNew_ClampsComponents(t *testing.T) {
	v := New(1, 10000, -3, "x")
	assert.Equal(t, 1, v.Major())
	assert.Equal(t, 0, v.Minor())
	assert.Equal(t, 0, v.Build())
	assert.Equal(t, "X", v.Qualifier())
	assert.False(t, v.IsZero())
	assert.True(t, PlatformVersion{}.IsZero())
}

func TestTextMarshaling(t *testing.T) {
	type payload struct {
		Version PlatformVersion `json:"version"`
	}

	data, err := json.Marshal(payload{Version: MustParse("2.1-rc")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"2.1.0-RC"}`, string(data))

	var decoded payload
	require.NoError(t, json.Unmarshal([]byte(`{"version":"3.4.5"}`), &decoded))
	assert.Equal(t, "0003.0004.0005", decoded.Version.Key())

	err = json.Unmarshal([]byte(`{"version":"not-a-version"}`), &decoded)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("x") })
}
