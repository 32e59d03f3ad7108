package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	relayredis "github.com/fathima-sithara/chat-relay/internal/redis"
	"github.com/fathima-sithara/chat-relay/internal/service"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type createConversationReq struct {
	FriendlyName string                     `json:"friendlyName"`
	Participants []service.ParticipantInput `json:"participants"`
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	var req createConversationReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	conv, err := s.conversations.CreateConversation(c.UserContext(), req.FriendlyName, req.Participants)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, conv)
}

func (s *Server) createPrivateConversation(c *fiber.Ctx) error {
	var req createConversationReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.conversations.CreatePrivateConversation(c.UserContext(), req.FriendlyName, req.Participants)
	if err != nil {
		return s.fail(c, err)
	}
	status := fiber.StatusCreated
	if res.Existing {
		status = fiber.StatusOK
	}
	return utils.JSONSuccess(c, status, res)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	out, err := s.conversations.ListConversations(c.UserContext(), c.Query("userId"))
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, out)
}

func (s *Server) deleteConversation(c *fiber.Ctx) error {
	if err := s.conversations.DeleteConversation(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"message": "conversation deleted"})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs, err := s.conversations.ListMessages(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

type sendMessageReq struct {
	Body   string   `json:"body"`
	Author string   `json:"author"`
	Media  []string `json:"media" validate:"omitempty,dive,url"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	msg, err := s.conversations.SendMessage(c.UserContext(), c.Params("id"), req.Body, author(c, req.Author), req.Media)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, msg)
}

// sendMessageWithFiles takes a multipart form with body, author and one or
// more "files" parts.
func (s *Server) sendMessageWithFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: multipart form expected", utils.ErrBadRequest))
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return s.fail(c, fmt.Errorf("%w: no files provided", utils.ErrInvalidFile))
	}
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			return s.fail(c, err)
		}
		uploads = append(uploads, u)
	}
	res, err := s.conversations.SendMessageWithFiles(c.UserContext(), c.Params("id"), c.FormValue("body"), author(c, c.FormValue("author")), uploads)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, res)
}

type chatParticipantReq struct {
	Identity string `json:"identity" validate:"required"`
}

func (s *Server) addChatParticipant(c *fiber.Ctx) error {
	var req chatParticipantReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	p, err := s.conversations.AddParticipant(c.UserContext(), c.Params("id"), req.Identity)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, p)
}

type smsParticipantReq struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,e164"`
}

func (s *Server) addSMSParticipant(c *fiber.Ctx) error {
	var req smsParticipantReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	p, err := s.conversations.AddSMSParticipant(c.UserContext(), c.Params("id"), req.PhoneNumber)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, p)
}

func (s *Server) onlineUsers(c *fiber.Ctx) error {
	id := c.Params("id")
	users := s.gateway.OnlineUsers(id)
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"conversationId": id, "onlineUsers": users, "count": len(users)})
}

func (s *Server) connectedCount(c *fiber.Ctx) error {
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"count": s.gateway.ConnectedUsersCount()})
}

// reachability answers from this node first, then from the shared presence
// mirror for users connected elsewhere.
func (s *Server) reachability(c *fiber.Ctx) error {
	id := c.Params("id")
	if u, ok := s.gateway.OnlineUser(id); ok {
		return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
			"userId": id, "identity": u.Identity, "online": true, "lastSeen": u.LastSeen, "local": true,
		})
	}
	out := fiber.Map{"userId": id, "online": false, "local": false}
	if s.presence != nil {
		p, err := s.presence.Get(c.UserContext(), id)
		switch {
		case err == nil:
			out["online"] = p.Status == relayredis.StatusOnline
			out["identity"] = p.Identity
			out["lastSeen"] = p.LastSeen
			out["node"] = p.Node
		case !errors.Is(err, utils.ErrNotFound):
			s.logger.Warn("presence lookup failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	return utils.JSONSuccess(c, fiber.StatusOK, out)
}

type statusReq struct {
	Status string `json:"status" validate:"required,max=64"`
}

func (s *Server) broadcastStatus(c *fiber.Ctx) error {
	var req statusReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	n := s.gateway.BroadcastUserStatus(c.UserContext(), c.Params("id"), req.Status)
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"reached": n})
}
