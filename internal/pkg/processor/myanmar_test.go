package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTextTrimAndPassthrough(t *testing.T) {
	assert.Equal(t, "hello", NormalizeText("  hello  "))
	assert.Equal(t, "", NormalizeText("   "))
	// 标准 Unicode 缅文原样保留
	assert.Equal(t, "မင်္ဂလာပါ", NormalizeText("မင်္ဂလာပါ"))
}

func TestIsLikelyZawgyi(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"纯英文", "hello world", false},
		{"标准缅文", "မင်္ဂလာပါ", false},
		{"Zawgyi 专用码位", "ၪက", true},
		{"E 元音置于声母之前", "ေက", true},
		{"E 元音置于 Ya 之前", "ေျမ", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLikelyZawgyi(tc.text))
		})
	}
}

func TestNormalizeTextZawgyiConversion(t *testing.T) {
	// Zawgyi "ေက" -> Unicode "ကေ" (E 元音移到声母之后)
	assert.Equal(t, "ကေ", NormalizeText("ေက"))

	// Zawgyi "ေျမ" -> Unicode "မြေ" (介音 Ra 与 E 元音均归位)
	assert.Equal(t, "မြေ", NormalizeText("ေျမ"))

	// Zawgyi 专用码位重映射
	assert.Equal(t, "ဉ", NormalizeText("ၪ"))
}
