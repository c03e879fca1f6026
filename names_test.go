package prepfan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Large":       "large",
		"big deal":    "big_deal",
		"a--b":        "a_b",
		"-0.5":        "minus_0_5",
		"3rd":         "x_3rd",
		"UPPER_case":  "upper_case",
		"a!!b??c":     "a_b_c",
		"0.5":         "x_0_5",
		"__already__": "_already_",
	}

	for in, want := range cases {
		assert.Equal(t, want, sanitizeName(in), in)
	}
}

func TestUniqueNames(t *testing.T) {
	in := []string{"a", "b", "a", "a", "b"}
	out := uniqueNames(in)
	assert.Equal(t, []string{"a", "b", "a_2", "a_3", "b_2"}, out)

	// already-unique names pass through
	in = []string{"x", "y", "z"}
	assert.Equal(t, in, uniqueNames(in))

	// a collision with an existing suffixed name skips forward
	in = []string{"a", "a_2", "a"}
	out = uniqueNames(in)
	assert.Equal(t, "a", out[0])
	assert.Equal(t, "a_2", out[1])
	assert.NotEqual(t, out[1], out[2])
}
