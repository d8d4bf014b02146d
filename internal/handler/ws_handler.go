/*
Package handler provides the HTTP gateway: health checking and the
WebSocket access path to the chat protocol.

This file contains HandleWebSocket, which rate limits, upgrades the HTTP
connection, and runs a chat.Handler over the upgraded connection. The
client speaks the exact same line protocol as a raw TCP client, one
command or response line per text frame.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/chat"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/limiter"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the request
// and drives the protocol state machine over the WebSocket connection.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, http.StatusTooManyRequests, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Info("WebSocket connection established", "ip", ip)

		chat.NewHandler(newWSConn(ws), deps.Chat).Run(r.Context())
	}
}
