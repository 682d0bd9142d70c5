package http

import (
	"errors"
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2"

	"triage_worker/core/port/in"
	"triage_worker/core/service/auth"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/response"
)

type OAuthHandler struct {
	oauthService in.OAuthService
	tokenKey     string
}

// NewOAuthHandler. tokenKey is only shown on the success page.
func NewOAuthHandler(oauthService in.OAuthService, tokenKey string) *OAuthHandler {
	return &OAuthHandler{oauthService: oauthService, tokenKey: tokenKey}
}

// Register mounts the consent flow. guards run before each route.
func (h *OAuthHandler) Register(api fiber.Router, guards ...fiber.Handler) {
	api.Get("/auth", chain(guards, h.Connect)...)
	api.Get("/callback", chain(guards, h.Callback)...)
}

// Connect redirects to the consent screen.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	authURL, err := h.oauthService.GetAuthURL(c.UserContext())
	if err != nil {
		requestLogger(c).WithError(err).Error("[OAuth Connect] GetAuthURL failed")
		return response.FromAppError(c, apperr.InternalWithError(err))
	}
	return c.Redirect(authURL, fiber.StatusFound)
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	log := requestLogger(c)
	code := c.Query("code")

	if errParam := c.Query("error"); errParam != "" {
		log.Warn("[OAuth Callback] Error from provider: %s", errParam)
		return response.FromAppError(c, apperr.BadRequest("OAuth error: "+errParam))
	}
	if code == "" {
		return response.FromAppError(c, apperr.BadRequest("Missing authorization code"))
	}

	err := h.oauthService.HandleCallback(c.UserContext(), code, c.Query("state"))
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		log.Warn("[OAuth Callback] Invalid state")
		return response.FromAppError(c, apperr.BadRequest("Invalid or expired OAuth state. Visit /api/auth to retry."))
	case err != nil:
		log.WithError(err).Error("[OAuth Callback] Token exchange failed")
		return response.FromAppError(c, apperr.OAuthFailed(err))
	}

	log.Info("[OAuth Callback] Refresh token stored")
	c.Type("html", "utf-8")
	return c.SendString(fmt.Sprintf(successPage, html.EscapeString(h.tokenKey)))
}

const successPage = `<html>
  <body style="font-family: sans-serif; padding: 40px;">
    <h1>OAuth Success!</h1>
    <p>Refresh token stored.</p>
    <p>Key: <code>%s</code></p>
  </body>
</html>`
