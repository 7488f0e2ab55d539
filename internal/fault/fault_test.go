package fault

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindUnknown},
		{"provider", Provider("lookup", errors.New("timeout")), KindProvider},
		{"persistence", Persistence("save", errors.New("conn refused")), KindPersistence},
		{"validation", Validation("search", "query is required"), KindValidation},
		{"not found", NotFound("get", "company", "c1"), KindNotFound},
		{"wrapped by eris", eris.Wrap(NotFound("get", "company", "c1"), "enrich: load"), KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Provider("lookup", nil))
	assert.NoError(t, Persistence("save", nil))
}

func TestErrorMessage(t *testing.T) {
	err := NotFound("store: get company", "company", "abc")
	assert.Equal(t, `store: get company: company "abc" not found`, err.Error())

	err = Validationf("search", "limit must be > 0, got %d", 0)
	assert.Contains(t, err.Error(), "limit must be > 0, got 0")
}

func TestUnwrap(t *testing.T) {
	base := errors.New("root cause")
	err := Provider("lookup", base)
	assert.ErrorIs(t, err, base)
	assert.True(t, Is(err, KindProvider))
	assert.False(t, Is(err, KindPersistence))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("x", "bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x", "company", "1")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Provider("x", errors.New("down"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Persistence("x", errors.New("down"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("other")))
}
