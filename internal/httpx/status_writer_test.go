package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusWriterImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &StatusWriter{ResponseWriter: rec}
	if sw.Written() {
		t.Fatal("fresh writer should not be committed")
	}
	if _, err := sw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if sw.Status != http.StatusOK || sw.Bytes != 5 {
		t.Fatalf("expected 200/5, got %d/%d", sw.Status, sw.Bytes)
	}
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &StatusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.Code() != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got writer=%d recorder=%d", sw.Code(), rec.Code)
	}
}
