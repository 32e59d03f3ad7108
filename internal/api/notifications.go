package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type notifyReq struct {
	UserID  string         `json:"userId"`
	GroupID string         `json:"groupId"`
	Topic   string         `json:"topic"`
	Title   string         `json:"title" validate:"required"`
	Body    string         `json:"body" validate:"required"`
	Data    map[string]any `json:"data"`
}

type topicMembershipReq struct {
	Tokens []string `json:"tokens" validate:"required,min=1,dive,required"`
	Topic  string   `json:"topic" validate:"required"`
}

func (s *Server) notifyUser(c *fiber.Ctx) error {
	var req notifyReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.UserID == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "userId is required")
	}
	res, err := s.notifier.SendToUser(c.UserContext(), req.UserID, req.Title, req.Body, req.Data)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) notifyGroup(c *fiber.Ctx) error {
	var req notifyReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.GroupID == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "groupId is required")
	}
	res, err := s.notifier.SendToGroup(c.UserContext(), req.GroupID, req.Title, req.Body, req.Data)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) notifyTopic(c *fiber.Ctx) error {
	var req notifyReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.Topic == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "topic is required")
	}
	res, err := s.notifier.SendToTopic(c.UserContext(), req.Topic, req.Title, req.Body, req.Data)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) subscribeTopic(c *fiber.Ctx) error {
	var req topicMembershipReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.notifier.SubscribeToTopic(c.UserContext(), req.Tokens, req.Topic)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) unsubscribeTopic(c *fiber.Ctx) error {
	var req topicMembershipReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.notifier.UnsubscribeFromTopic(c.UserContext(), req.Tokens, req.Topic)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}
