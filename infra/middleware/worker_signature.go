package middleware

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/response"
)

// SignatureHeader carries the HS256 JWT signed by the trigger service.
const SignatureHeader = "Upstash-Signature"

const signatureIssuer = "Upstash"

// SignatureConfig holds the two rotating signing keys. Either may sign a valid request.
type SignatureConfig struct {
	CurrentKey string
	NextKey    string
	// PublicURL replaces the request's scheme and host when computing the
	// expected subject, for deployments behind a proxy.
	PublicURL string
}

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// VerifySignature rejects requests whose signature does not cover this URL and body.
func VerifySignature(cfg SignatureConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(SignatureHeader)
		if token == "" {
			return response.FromAppError(c, apperr.InvalidSignature("missing "+SignatureHeader+" header"))
		}

		base := strings.TrimSuffix(cfg.PublicURL, "/")
		if base == "" {
			base = c.BaseURL()
		}
		url := base + c.OriginalURL()

		err := verifyWithKey(token, cfg.CurrentKey, url, c.Body())
		if err != nil && cfg.NextKey != "" {
			err = verifyWithKey(token, cfg.NextKey, url, c.Body())
		}
		if err != nil {
			logger.WithField("path", c.Path()).WithError(err).Warn("signature verification failed")
			return response.FromAppError(c, apperr.InvalidSignature(err.Error()))
		}
		return c.Next()
	}
}

func verifyWithKey(token, key, url string, body []byte) error {
	if key == "" {
		return errors.New("signing key not configured")
	}

	claims := &signatureClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithSubject(url),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.Body, "=") != want {
		return fmt.Errorf("body hash mismatch")
	}
	return nil
}
