package httpx

import "net/http"

// StatusWriter records the status code and body size written through it.
// Status stays 0 until the handler writes a header or a body.
type StatusWriter struct {
	http.ResponseWriter
	Status int
	Bytes  int
}

func (w *StatusWriter) WriteHeader(code int) {
	if w.Status != 0 {
		return
	}
	w.Status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(p []byte) (int, error) {
	if w.Status == 0 {
		w.Status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.Bytes += n
	return n, err
}

// Code is Status with the implicit 200 applied.
func (w *StatusWriter) Code() int {
	if w.Status == 0 {
		return http.StatusOK
	}
	return w.Status
}

// Written reports whether the response has been committed.
func (w *StatusWriter) Written() bool { return w.Status != 0 }

func (w *StatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
