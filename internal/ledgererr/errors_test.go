package ledgererr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validationf("bad input"), http.StatusBadRequest},
		{Conflictf("cannot bank negative balance"), http.StatusConflict},
		{NotFoundf("voyage not found"), http.StatusNotFound},
		{errors.New("driver failure"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("adjusting balance: %w", Conflictf("cannot borrow when vessel is pooled"))
	if KindOf(err) != Conflict {
		t.Fatalf("expected Conflict kind through wrapping, got %v", KindOf(err))
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409 through wrapping")
	}
}
