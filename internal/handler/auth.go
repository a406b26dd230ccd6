package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/config"
	"github.com/omegabingo/card-reservation/internal/utils"
)

// AuthHandler implements admin login. There is no self-service signup:
// the single admin account is seeded through configuration as an email
// plus a bcrypt hash.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	Access tokenPart `json:"access"`
}

// Login verifies the seeded admin credentials and issues an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	if req.Email != strings.ToLower(h.Cfg.AdminEmail) || !utils.VerifyPassword(h.Cfg.AdminPasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.Email, "ADMIN", h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, loginResp{
		Email:  req.Email,
		Role:   "ADMIN",
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me echoes the identity carried by a valid token, mainly so the admin
// panel can verify a stored token on load.
func (h *AuthHandler) Me(c echo.Context) error {
	email, _ := c.Get("admin_email").(string)
	role, _ := c.Get("role").(string)
	return c.JSON(http.StatusOK, echo.Map{"email": email, "role": role})
}
