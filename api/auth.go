package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
)

// AuthMiddleware validates the HMAC session token on every API call when
// auth is enabled.
func AuthMiddleware(cfg config.Auth) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		// Public routes
		if c.Request.URL.Path == "/api/login" {
			c.Next()
			return
		}

		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			// Fallback to query parameter for <video> tags
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if valid, _ := validateToken(secret, tokenString); !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}

func LoginHandler(cfg config.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(400, gin.H{"error": "Bad request"})
			return
		}

		if creds.Username == cfg.Username && creds.Password == cfg.Password {
			token, _ := generateToken([]byte(cfg.Secret), creds.Username)
			c.JSON(200, gin.H{"token": token})
		} else {
			c.JSON(401, gin.H{"error": "Invalid credentials"})
		}
	}
}

type jwtClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

// Simple JWT implementation using stdlib
func generateToken(secret []byte, user string) (string, error) {
	header := `{"alg":"HS256","typ":"JWT"}`

	claims := jwtClaims{
		Sub: user,
		Exp: time.Now().Add(24 * time.Hour).Unix(),
	}

	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString([]byte(header))
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)

	signatureInput := encodedHeader + "." + encodedPayload

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signatureInput))
	signature := mac.Sum(nil)
	encodedSignature := base64.RawURLEncoding.EncodeToString(signature)

	return signatureInput + "." + encodedSignature, nil
}

func validateToken(secret []byte, token string) (bool, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false, fmt.Errorf("invalid token format")
	}

	signatureInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signatureInput))
	expectedMAC := mac.Sum(nil)

	providedMAC, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false, nil
	}

	if !hmac.Equal(providedMAC, expectedMAC) {
		return false, nil
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("invalid token encoding")
	}

	var claims jwtClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return false, fmt.Errorf("invalid token payload")
	}

	if time.Now().Unix() > claims.Exp {
		return false, fmt.Errorf("token expired")
	}

	return true, nil
}
