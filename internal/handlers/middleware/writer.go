package middleware

import (
	"net/http"
)

type responseData struct {
	status int
	size   int
}

// responseWriter remembers status and size written by the next handler
type responseWriter struct {
	http.ResponseWriter
	data responseData
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		data:           responseData{status: http.StatusOK, size: 0},
	}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.size += size
	return size, err
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.status = statusCode
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
