package semver

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	// V is structured semantic version representation
	V struct {
		Major, Minor, Patch uint
		PreRelease          string
		BuildMetadata       []string
	}
)

func (v V) String() string {
	buf := strings.Builder{}
	buf.WriteString(strconv.FormatUint(uint64(v.Major), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Minor), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Patch), 10))
	if v.PreRelease != "" {
		buf.WriteByte('-')
		buf.WriteString(v.PreRelease)
	}
	if len(v.BuildMetadata) > 0 {
		buf.WriteByte('+')
		buf.WriteString(strings.Join(v.BuildMetadata, "."))
	}

	return buf.String()
}

// Parse - reads "MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]", leading "v" is allowed.
// Typical source is a git tag injected at build time.
func Parse(s string) (V, error) {
	v := V{}
	rest := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if rest == "" {
		return v, fmt.Errorf("semver.Parse: empty version")
	}
	if i := strings.IndexByte(rest, '+'); i > -1 {
		meta := rest[i+1:]
		if meta == "" {
			return v, fmt.Errorf("semver.Parse: %q has empty build metadata", s)
		}
		v.BuildMetadata = strings.Split(meta, ".")
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '-'); i > -1 {
		v.PreRelease = rest[i+1:]
		if v.PreRelease == "" {
			return v, fmt.Errorf("semver.Parse: %q has empty pre-release", s)
		}
		rest = rest[:i]
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return v, fmt.Errorf("semver.Parse: %q is not MAJOR.MINOR.PATCH", s)
	}
	nums := [3]uint{}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return v, fmt.Errorf("semver.Parse: %q has invalid number %q", s, p)
		}
		nums[i] = uint(n)
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse - like Parse, falls back to given version on error.
func MustParse(s string, fallback V) V {
	v, err := Parse(s)
	if err != nil {
		return fallback
	}
	return v
}
