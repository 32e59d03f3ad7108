package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/auth"
	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/gateway"
	"github.com/fathima-sithara/chat-relay/internal/metrics"
	"github.com/fathima-sithara/chat-relay/internal/push"
	relayredis "github.com/fathima-sithara/chat-relay/internal/redis"
	"github.com/fathima-sithara/chat-relay/internal/service"
	"github.com/fathima-sithara/chat-relay/internal/utils"
	"github.com/fathima-sithara/chat-relay/internal/ws"
)

// Gateway is the part of the realtime controller the REST surface reads from
// and broadcasts through.
type Gateway interface {
	ConnectedUsersCount() int
	OnlineUsers(roomID string) []gateway.OnlineUser
	OnlineUser(userID string) (gateway.OnlineUser, bool)
	BroadcastUserStatus(ctx context.Context, userID string, status any) int
}

// PresenceLookup answers for users connected to other relay nodes.
type PresenceLookup interface {
	Get(ctx context.Context, userID string) (relayredis.Presence, error)
}

type Deps struct {
	Config        *config.Config
	Conversations *service.ConversationService
	Users         *service.UserService
	Files         *service.FileService
	Notifier      *push.Notifier
	Gateway       Gateway
	Presence      PresenceLookup
	WS            *ws.Handler
	Auth          *auth.Manager
	RateLimit     fiber.Handler
	Logger        *zap.Logger
}

type Server struct {
	conversations *service.ConversationService
	users         *service.UserService
	files         *service.FileService
	notifier      *push.Notifier
	gateway       Gateway
	presence      PresenceLookup
	logger        *zap.Logger
}

const uploadOverhead = 1 << 20

func NewServer(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "chat-relay",
		BodyLimit:    int(d.Config.Upload.MaxFileSizeBytes) + uploadOverhead,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler(d.Logger),
	})
	s := &Server{
		conversations: d.Conversations,
		users:         d.Users,
		files:         d.Files,
		notifier:      d.Notifier,
		gateway:       d.Gateway,
		presence:      d.Presence,
		logger:        d.Logger,
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", s.health)
	if d.Config.Metrics.Enabled {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}
	if d.WS != nil {
		app.Get("/ws", auth.Middleware(d.Auth), func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, websocket.New(d.WS.Serve, websocket.Config{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		}))
	}

	v1 := app.Group("/v1")
	if d.RateLimit != nil {
		v1.Use(d.RateLimit)
	}
	v1.Post("/token", s.issueToken)
	v1.Use(auth.Middleware(d.Auth))

	conv := v1.Group("/conversations")
	conv.Post("/", s.createConversation)
	conv.Post("/private", s.createPrivateConversation)
	conv.Get("/", s.listConversations)
	conv.Delete("/:id", s.deleteConversation)
	conv.Get("/:id/messages", s.listMessages)
	conv.Post("/:id/messages", s.sendMessage)
	conv.Post("/:id/messages/files", s.sendMessageWithFiles)
	conv.Post("/:id/participants/chat", s.addChatParticipant)
	conv.Post("/:id/participants/sms", s.addSMSParticipant)
	conv.Get("/:id/online-users", s.onlineUsers)

	pres := v1.Group("/presence")
	pres.Get("/count", s.connectedCount)
	pres.Get("/users/:id", s.reachability)
	pres.Post("/users/:id/status", s.broadcastStatus)

	users := v1.Group("/users")
	users.Post("/", s.createUser)
	users.Get("/", s.listUsers)
	users.Delete("/:id", s.deleteUser)
	users.Post("/:id/fcm-token", s.saveFCMToken)

	groups := v1.Group("/groups")
	groups.Post("/sync", s.syncGroups)
	groups.Post("/:id/participants", s.addGroupParticipants)

	notif := v1.Group("/notifications")
	notif.Post("/user", s.notifyUser)
	notif.Post("/group", s.notifyGroup)
	notif.Post("/topic", s.notifyTopic)
	notif.Post("/topic/subscribe", s.subscribeTopic)
	notif.Post("/topic/unsubscribe", s.unsubscribeTopic)

	files := v1.Group("/files")
	files.Post("/", s.uploadFile)
	files.Get("/message/:messageId", s.filesByMessage)
	files.Get("/conversation/:conversationId", s.filesByConversation)
	files.Get("/:id", s.getFile)
	files.Patch("/:id", s.updateFile)
	files.Delete("/:id", s.deleteFile)

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "connectedUsers": s.gateway.ConnectedUsersCount()})
}

type tokenReq struct {
	Identity string `json:"identity" validate:"required"`
}

func (s *Server) issueToken(c *fiber.Ctx) error {
	var req tokenReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	tok, err := s.users.IssueToken(req.Identity)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, tok)
}

// fail answers with the status the error maps to. Server side failures are
// logged and hidden from the client.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := utils.StatusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		s.logger.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return utils.JSONError(c, status, http.StatusText(status))
	}
	if fields := utils.FormatValidationErrors(err); len(fields) > 0 {
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": "validation failed", "errors": fields})
	}
	return utils.JSONError(c, status, err.Error())
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return utils.JSONError(c, code, err.Error())
	}
}

func parse(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: invalid payload", utils.ErrBadRequest)
	}
	return utils.ValidateStruct(dst)
}

func readUpload(fh *multipart.FileHeader) (service.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.Upload{}, fmt.Errorf("%w: cannot open %s", utils.ErrInvalidFile, fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return service.Upload{}, fmt.Errorf("%w: cannot read %s", utils.ErrInvalidFile, fh.Filename)
	}
	return service.Upload{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

// author picks the message author: an explicit one, else the verified subject.
func author(c *fiber.Ctx, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return auth.Subject(c)
}
