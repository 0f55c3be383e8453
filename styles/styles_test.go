package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()

	assert.Equal(t, "Photorealistic", c.Default)
	assert.Len(t, c.Categories, 12)
	all := c.All()
	assert.Equal(t, "Photorealistic", all[0])
	assert.Equal(t, "Documentary", all[len(all)-1])

	cat, ok := c.CategoryOf("film noir")
	require.True(t, ok)
	assert.Equal(t, "Dark & Moody", cat)

	assert.True(t, c.Valid("Ukiyo-e"))
	assert.False(t, c.Valid("Crayon Scribbles"))

	name, ok := c.Canonical("pixel art")
	require.True(t, ok)
	assert.Equal(t, "Pixel Art", name)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("categories:\n  - name: A\n    styles: [X, x]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("default: Y\ncategories:\n  - name: A\n    styles: [X]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("categories: ["))
	assert.Error(t, err, "malformed yaml")

	for _, empty := range []string{"", ":::", "categorys:\n  - name: A\n    styles: [X]\n", "categories:\n  - name: A\n"} {
		_, err = Parse([]byte(empty))
		assert.Error(t, err, "no styles in %q", empty)
	}
}
