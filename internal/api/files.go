package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-relay/internal/service"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

// uploadFile accepts a multipart form with a "file" part and the metadata
// fields conversationId, uploadedBy, messageId, description and tags
// (comma separated).
func (s *Server) uploadFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: file missing", utils.ErrInvalidFile))
	}
	conversationID := c.FormValue("conversationId")
	if conversationID == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "conversationId is required")
	}
	u, err := readUpload(fh)
	if err != nil {
		return s.fail(c, err)
	}
	meta := service.UploadMeta{
		ConversationID: conversationID,
		MessageID:      c.FormValue("messageId"),
		UploadedBy:     author(c, c.FormValue("uploadedBy")),
		Description:    c.FormValue("description"),
		Tags:           splitTags(c.FormValue("tags")),
	}
	fm, err := s.files.Upload(c.UserContext(), u, meta)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, fm)
}

func (s *Server) getFile(c *fiber.Ctx) error {
	fm, err := s.files.GetFileMetadata(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fm)
}

type updateFileReq struct {
	MessageID string `json:"messageId" validate:"required"`
}

func (s *Server) updateFile(c *fiber.Ctx) error {
	var req updateFileReq
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}
	fm, err := s.files.UpdateFileMetadata(c.UserContext(), c.Params("id"), req.MessageID)
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fm)
}

func (s *Server) filesByMessage(c *fiber.Ctx) error {
	files, err := s.files.FilesByMessage(c.UserContext(), c.Params("messageId"))
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, files)
}

func (s *Server) filesByConversation(c *fiber.Ctx) error {
	files, err := s.files.FilesByConversation(c.UserContext(), c.Params("conversationId"))
	if err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, files)
}

func (s *Server) deleteFile(c *fiber.Ctx) error {
	if err := s.files.DeleteFile(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"message": "file deleted"})
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
