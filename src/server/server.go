package server

import (
	"context"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/vinneth/chathub/config"
	"github.com/vinneth/chathub/src/auth"
	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/service"
	"github.com/vinneth/chathub/src/types"
)

// Server accepts WebSocket upgrades on /ws and serves the info routes
// via Fiber. The upgrade path uses a raw fasthttp handler because Fiber
// v3 does not expose *fasthttp.RequestCtx.
type Server struct {
	hub      *hub.Hub
	svc      *service.Service
	auth     *auth.Authenticator
	logger   zerolog.Logger
	app      *fiber.App
	srv      *fasthttp.Server
	upgrader websocket.FastHTTPUpgrader
}

func New(cfg config.SocketConfig, h *hub.Hub, svc *service.Service, authn *auth.Authenticator, logger zerolog.Logger) *Server {
	s := &Server{
		hub:    h,
		svc:    svc,
		auth:   authn,
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}

	s.app = fiber.New(fiber.Config{AppName: "chathub"})
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/ws/info", s.handleInfo)

	appHandler := s.app.Handler()
	s.srv = &fasthttp.Server{
		Name: "chathub",
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				s.handleUpgrade(ctx)
				return
			}
			appHandler(ctx)
		},
	}
	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("listening")
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting new connections and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	stats := s.svc.Stats()
	return c.JSON(fiber.Map{
		"websocket":    true,
		"endpoint":     "/ws",
		"connections":  stats.Connections,
		"online_users": stats.OnlineUsers,
	})
}

// handleUpgrade upgrades the connection, then authenticates the bearer
// credential from the token query parameter or the auth_token cookie.
// A missing or invalid credential gets an error frame and a close; no
// registration happens.
func (s *Server) handleUpgrade(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetBodyString(`{"error":"upgrade_required"}`)
		return
	}

	token := string(ctx.QueryArgs().Peek("token"))
	if token == "" {
		token = string(ctx.Request.Header.Cookie("auth_token"))
	}

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		s.serveConn(conn, token)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

func (s *Server) serveConn(conn *websocket.Conn, token string) {
	if token == "" {
		s.rejectConn(conn, "authentication required")
		return
	}
	claims, err := s.auth.Validate(token)
	if err != nil {
		s.rejectConn(conn, "invalid token")
		return
	}

	client := hub.NewClient(uuid.New().String(), claims.UserID, conn, s.hub, s.logger)
	s.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (s *Server) rejectConn(conn *websocket.Conn, reason string) {
	frame, err := types.NewFrame(types.EventError, types.ErrorPayload{Message: reason})
	if err == nil {
		_ = conn.WriteJSON(frame)
	}
	_ = conn.Close()
}
