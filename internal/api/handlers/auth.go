// Package handlers holds the auth server's HTTP handlers. The auth server
// exists to get credentials into the vault; everything else the pipeline
// does is driven by the CLI or the worker.
package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/oauth"
	"github.com/maheshrc27/clippost/internal/vault"
)

const stateTTL = 10 * time.Minute

type AuthHandler struct {
	cfg       *config.Config
	exchanger *oauth.Exchanger
	vault     *vault.Vault
	log       *slog.Logger
}

func NewAuthHandler(cfg *config.Config, exchanger *oauth.Exchanger, v *vault.Vault, log *slog.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, exchanger: exchanger, vault: v, log: log}
}

// StartAuth redirects the user to a platform's consent screen. The user id
// rides along in a signed state token so the callback knows who to store
// credentials for without server-side session state.
func (h *AuthHandler) StartAuth(c *fiber.Ctx) error {
	platform := c.Params("platform")
	userID := c.Query("user", "default")

	state, err := h.signState(userID, platform)
	if err != nil {
		return fmt.Errorf("sign state: %w", err)
	}

	authURL, err := h.exchanger.AuthURL(platform, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

// Callback finishes the OAuth dance: verify state, swap the code for tokens
// and seal them into the vault.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	platform := c.Params("platform")

	if errParam := c.Query("error"); errParam != "" {
		h.log.Warn("authorization denied", "platform", platform, "error", errParam)
		return c.Redirect(h.cfg.FrontendURL + "?auth=denied")
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing code"})
	}

	userID, statePlatform, err := h.verifyState(c.Query("state"))
	if err != nil {
		h.log.Warn("state verification failed", "platform", platform, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid state"})
	}
	if statePlatform != platform {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "state platform mismatch"})
	}

	cred, err := h.exchanger.Exchange(c.Context(), platform, code)
	if err != nil {
		h.log.Error("code exchange failed", "platform", platform, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "token exchange failed"})
	}

	if err := h.vault.StoreCredentials(userID, platform, cred); err != nil {
		h.log.Error("could not store credentials", "platform", platform, "user", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not store credentials"})
	}

	h.log.Info("credentials stored", "platform", platform, "user", userID, "expiry", cred.Expiry)
	return c.Redirect(h.cfg.FrontendURL + "?auth=ok&platform=" + platform)
}

// ListAccounts reports which platforms a user has connected and whether each
// credential is still usable.
func (h *AuthHandler) ListAccounts(c *fiber.Ctx) error {
	userID := c.Query("user", "default")
	platforms, err := h.vault.ListPlatforms(userID)
	if err != nil {
		return fmt.Errorf("list platforms: %w", err)
	}

	accounts := make([]fiber.Map, 0, len(platforms))
	for _, platform := range platforms {
		accounts = append(accounts, fiber.Map{
			"platform":      platform,
			"authenticated": h.vault.IsAuthenticated(userID, platform),
		})
	}
	return c.JSON(fiber.Map{"user": userID, "accounts": accounts})
}

// RemoveAccount disconnects one platform for a user.
func (h *AuthHandler) RemoveAccount(c *fiber.Ctx) error {
	var body struct {
		User     string `json:"user"`
		Platform string `json:"platform"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if body.User == "" {
		body.User = "default"
	}
	if body.Platform == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "platform is required"})
	}

	if err := h.vault.DeleteCredentials(body.User, body.Platform); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return c.JSON(fiber.Map{"removed": body.Platform})
}

func (h *AuthHandler) signState(userID, platform string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      userID,
		"platform": platform,
		"exp":      time.Now().Add(stateTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.SecretKey))
}

func (h *AuthHandler) verifyState(state string) (userID, platform string, err error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.cfg.SecretKey), nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid state token")
	}

	userID, _ = claims["sub"].(string)
	platform, _ = claims["platform"].(string)
	if userID == "" || platform == "" {
		return "", "", fmt.Errorf("state token missing claims")
	}
	return userID, platform, nil
}
