package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "北京市", NormalizeName(" 北京市\t"))
	assert.Equal(t, "北京市", NormalizeName("　北京市　"))
	assert.Equal(t, "", NormalizeName("  "))
}

func TestNameSet(t *testing.T) {
	set := NameSet([]string{"北京市", " 上海市 ", ""})
	assert.Len(t, set, 2)
	assert.True(t, set["上海市"])
	assert.False(t, set[""])
}
