// Package httputil holds the JSON request and response helpers and the
// request-scoped middleware shared by the iuran HTTP surface.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// Every error body has the shape {"error": "...", "code": "..."}.
package httputil
