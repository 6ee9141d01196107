package semver

import (
	"reflect"
	"testing"
)

func TestV_String(test *testing.T) {
	cases := []struct {
		v        V
		expected string
	}{
		{V{}, "0.0.0"},
		{V{Major: 1}, "1.0.0"},
		{V{Major: 1, Minor: 2}, "1.2.0"},
		{V{Major: 1, Minor: 2, Patch: 3}, "1.2.3"},
		{V{PreRelease: "alfa"}, "0.0.0-alfa"},
		{V{BuildMetadata: []string{"tag1", "tag2"}}, "0.0.0+tag1.tag2"},
		{V{Major: 1, Minor: 2, Patch: 3, PreRelease: "beta", BuildMetadata: []string{"x64"}}, "1.2.3-beta+x64"},
	}

	for _, c := range cases {
		test.Logf("%#v", c.v)
		actual := c.v.String()
		if actual != c.expected {
			test.Errorf("Error: expected %q, actual %q", c.expected, actual)
		}
	}
}

func TestParse(test *testing.T) {
	cases := []struct {
		in       string
		expected V
	}{
		{"0.0.0", V{}},
		{"v1.2.3", V{Major: 1, Minor: 2, Patch: 3}},
		{"1.2.3-rc.1", V{Major: 1, Minor: 2, Patch: 3, PreRelease: "rc.1"}},
		{"1.2.3+g1a2b3c.dirty", V{Major: 1, Minor: 2, Patch: 3, BuildMetadata: []string{"g1a2b3c", "dirty"}}},
		{"1.2.3-beta+x64", V{Major: 1, Minor: 2, Patch: 3, PreRelease: "beta", BuildMetadata: []string{"x64"}}},
	}
	for _, c := range cases {
		actual, err := Parse(c.in)
		if err != nil {
			test.Errorf("Parse(%q): unexpected error %v", c.in, err)
			continue
		}
		if !reflect.DeepEqual(actual, c.expected) {
			test.Errorf("Parse(%q): expected %#v, actual %#v", c.in, c.expected, actual)
		}
		if c.in[0] != 'v' && actual.String() != c.in {
			test.Errorf("Parse(%q).String() = %q", c.in, actual.String())
		}
	}

	for _, in := range []string{"", "v", "1.2", "1.2.3.4", "a.b.c", "1.2.3-", "1.2.3+", "-1.2.3"} {
		if _, err := Parse(in); err == nil {
			test.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestMustParse(test *testing.T) {
	fallback := V{Minor: 1}
	if v := MustParse("dev", fallback); !reflect.DeepEqual(v, fallback) {
		test.Error("MustParse: expected fallback, got", v)
	}
	if v := MustParse("2.0.0", fallback); v.Major != 2 {
		test.Error("MustParse: unexpected result", v)
	}
}
