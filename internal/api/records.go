package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-relay/internal/service"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

func (s *Server) createUser(c *fiber.Ctx) error {
	var req service.CreateUserInput
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	u, err := s.users.CreateUser(c.UserContext(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, u)
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	users, err := s.users.ListUsers(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, users)
}

func (s *Server) deleteUser(c *fiber.Ctx) error {
	if err := s.users.DeleteUser(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

type fcmTokenReq struct {
	Token      string `json:"token" validate:"required"`
	DeviceType string `json:"deviceType" validate:"omitempty,oneof=ios android web"`
}

func (s *Server) saveFCMToken(c *fiber.Ctx) error {
	var req fcmTokenReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	rec, created, err := s.users.SaveFCMToken(c.UserContext(), c.Params("id"), req.Token, req.DeviceType)
	if err != nil {
		return s.fail(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return utils.JSONSuccess(c, status, rec)
}

type syncGroupsReq struct {
	Groups []service.GroupInput `json:"groups" validate:"required,min=1"`
}

func (s *Server) syncGroups(c *fiber.Ctx) error {
	var req syncGroupsReq
	// entries are validated one by one in the service so a bad group fails alone
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	results := s.conversations.SyncGroups(c.UserContext(), req.Groups)
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"results": results})
}

type groupParticipantsReq struct {
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

func (s *Server) addGroupParticipants(c *fiber.Ctx) error {
	var req groupParticipantsReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.conversations.AddGroupParticipants(c.UserContext(), c.Params("id"), req.Participants)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, res)
}
