// Package httputil provides the JSON request and response helpers and the HTTP middleware
// shared by Atrium's transports.
//
// Errors are written from the apperrors taxonomy so every handler answers the same way:
//
//	if err != nil {
//		httputil.WriteError(w, err)
//		return
//	}
//
// produces a status from StatusFor and a body of {"error": code, "message": detail}. Internal
// errors never expose their detail.
//
// Middleware composes with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
