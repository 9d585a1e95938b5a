// Package api exposes the workspace authorization service over HTTP.
//
// Routes live under /v1 and are built on gorilla/mux. Every route except the invite token
// routes requires a bearer ID token:
//
//	POST   /v1/workspaces
//	GET    /v1/workspaces/{workspace}
//	DELETE /v1/workspaces/{workspace}
//	POST   /v1/workspaces/{workspace}/authorize
//	GET    /v1/workspaces/{workspace}/members
//	PUT    /v1/workspaces/{workspace}/members/{user}/role
//	POST   /v1/workspaces/{workspace}/members/{user}/permissions/grant
//	POST   /v1/workspaces/{workspace}/members/{user}/permissions/revoke
//	DELETE /v1/workspaces/{workspace}/members/{user}
//	GET    /v1/workspaces/{workspace}/canvases
//	POST   /v1/workspaces/{workspace}/canvases
//	PATCH  /v1/workspaces/{workspace}/canvases/{canvas}
//	DELETE /v1/workspaces/{workspace}/canvases/{canvas}
//	PUT    /v1/workspaces/{workspace}/default-canvas
//	GET    /v1/workspaces/{workspace}/invites
//	POST   /v1/workspaces/{workspace}/invites
//	DELETE /v1/invites/{invite}
//	GET    /v1/me/permissions
//	GET    /v1/me/redirect
//
// The token routes are rate limited. Preview and reject work anonymously; accept needs a
// signed-in user whose verified email matches the invite:
//
//	GET    /v1/invites/token/{token}
//	POST   /v1/invites/token/{token}/accept
//	POST   /v1/invites/token/{token}/reject
//
// Errors are returned as {"error": code, "message": text} with the status from
// httputil.StatusFor. Internal failures carry no message.
package api
