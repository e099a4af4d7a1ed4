package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

func (s *Server) listMessages(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", domain.DefaultPerPage)

	p, err := s.d.Chat.Messages(c.UserContext(), page, perPage)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

type postMessageRequest struct {
	Username string `json:"username" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

func (s *Server) postMessage(c *fiber.Ctx) error {
	var req postMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := s.d.Chat.Post(c.UserContext(), req.Username, req.Message)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(msg)
}

type issueTokenRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (s *Server) issueToken(c *fiber.Ctx) error {
	var req issueTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tok, err := s.d.Tokens.Issue(c.UserContext(), req.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"token":      tok,
		"user_id":    req.UserID,
		"expires_in": int64(s.d.TokenTTL.Seconds()),
	})
}

func (s *Server) tokenOwner(c *fiber.Ctx) error {
	owner, ok, err := s.d.Tokens.LookupOwner(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: token", domain.ErrNotFound)
	}
	return c.JSON(fiber.Map{
		"user_id":   owner,
		"connected": s.d.Hub.IsUserConnected(owner),
	})
}

func (s *Server) revokeToken(c *fiber.Ctx) error {
	if err := s.d.Tokens.Revoke(c.UserContext(), c.Params("token")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) revokeUserTokens(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: user id", domain.ErrBadRequest)
	}
	if err := s.d.Tokens.RevokeAll(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
