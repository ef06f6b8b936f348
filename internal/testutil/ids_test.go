package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSequence(t *testing.T) {
	seq := NewIDSequence()

	assert.Equal(t, "post_0001", seq.NewID("post"))
	assert.Equal(t, "post_0002", seq.NewID("post"))
	assert.Equal(t, "user_0001", seq.NewID("user"), "counters are per prefix")
}
