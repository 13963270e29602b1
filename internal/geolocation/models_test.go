package geolocation_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoplaza/autoplaza/internal/geolocation"
)

func TestMessage(t *testing.T) {
	assert.Equal(t, "Location access was denied.", geolocation.Message(geolocation.ErrPermissionDenied))
	assert.Contains(t, geolocation.Message(fmt.Errorf("%w: 10s", geolocation.ErrTimeout)), "too long")
	assert.Contains(t, geolocation.Message(assert.AnError), "could not be determined")
}
