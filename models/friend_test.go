package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "3-12", PairKey(3, 12))
	assert.Equal(t, PairKey(3, 12), PairKey(12, 3))
	assert.NotEqual(t, PairKey(1, 23), PairKey(12, 3))
}

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageTypeText.Valid())
	assert.True(t, MessageTypeFile.Valid())
	assert.False(t, MessageType("snap").Valid())
}
