package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(q string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+q, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(ctxWithQuery(""))
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("got %+v", p)
	}
}

func TestFromContext_CapsLimit(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=5000&offset=40"))
	if p.Limit != MaxLimit {
		t.Errorf("limit not capped: %d", p.Limit)
	}
	if p.Offset != 40 {
		t.Errorf("offset: %d", p.Offset)
	}
}

func TestSlice_Bounds(t *testing.T) {
	p := Params{Limit: 10, Offset: 95}
	lo, hi := p.Slice(100)
	if lo != 95 || hi != 100 {
		t.Errorf("got [%d,%d)", lo, hi)
	}
	lo, hi = Params{Limit: 10, Offset: 200}.Slice(100)
	if lo != 100 || hi != 100 {
		t.Errorf("got [%d,%d)", lo, hi)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse(nil, 50, 20, 20)
	if !r.HasMore {
		t.Error("expected more pages")
	}
	r = NewResponse(nil, 50, 20, 40)
	if r.HasMore {
		t.Error("expected last page")
	}
}
