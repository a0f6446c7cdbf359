package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_FollowsWrapChain(t *testing.T) {
	err := fmt.Errorf("promote proposal: %w", Conflict("proposal %d is deactivated", 7))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(err, KindNotFound))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindConflict:            http.StatusConflict,
		KindValidation:          http.StatusBadRequest,
		KindUpstreamUnavailable: http.StatusInternalServerError,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, New(kind, "x").HTTPStatus(), kind.String())
	}
}

func TestError_MessageIncludesOp(t *testing.T) {
	err := NotFound("need %d not found", 3).WithOp("create proposal")
	assert.Equal(t, "create proposal: need 3 not found", err.Error())
}
