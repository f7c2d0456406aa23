package mockapi

import (
	"fmt"
	"net/http"
)

// Header is one response header. Headers are applied in slice order with
// Header().Set, so a repeated name keeps its last value.
type Header struct {
	Name  string
	Value string
}

// Response is what a route answers with. A zero Status leaves the server's
// default (200) in place and a nil Body produces an empty body.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// Spec produces the Response for a request. It is either Static or Dynamic;
// a nil Spec answers with an empty Response.
type Spec interface {
	resolve(r *http.Request) (Response, error)
}

// Static answers every request with the same Response.
type Static Response

func (s Static) resolve(*http.Request) (Response, error) { return Response(s), nil }

// Dynamic computes a Response for each request. Nothing is cached between calls.
// A returned error is answered with a 500.
type Dynamic func(r *http.Request) (Response, error)

func (d Dynamic) resolve(r *http.Request) (Response, error) {
	if d == nil {
		return Response{}, nil
	}
	return d(r)
}

func resolve(spec Spec, r *http.Request) (Response, error) {
	if spec == nil {
		return Response{}, nil
	}
	resp, err := spec.resolve(r)
	if err != nil {
		return Response{}, err
	}
	if !validStatus(resp.Status) {
		return Response{}, fmt.Errorf("invalid status code %d", resp.Status)
	}
	return resp, nil
}

// validStatus accepts unset and final codes. A 1xx is informational and
// would reach the client as a 200.
func validStatus(code int) bool {
	return code == 0 || (code >= 200 && code <= 999)
}

func (resp Response) write(w http.ResponseWriter) {
	h := w.Header()
	for _, hdr := range resp.Headers {
		h.Set(hdr.Name, hdr.Value)
	}
	// A present-but-nil key stops net/http from sniffing a Content-Type.
	if _, ok := h["Content-Type"]; !ok {
		h["Content-Type"] = nil
	}
	if resp.Status != 0 {
		w.WriteHeader(resp.Status)
	}
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// normalize folds *Static and *Dynamic into their value forms.
func normalize(spec Spec) Spec {
	switch s := spec.(type) {
	case *Static:
		if s == nil {
			return nil
		}
		return *s
	case *Dynamic:
		if s == nil {
			return nil
		}
		return *s
	}
	return spec
}

func isDynamic(spec Spec) bool {
	_, ok := spec.(Dynamic)
	return ok
}
