package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/store"
)

const userKey = "user"

// AuthMiddleware validates the JWT token, reloads the user and attaches it to
// the context. Tokens issued before a password change are rejected.
func AuthMiddleware(dir store.Directory, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := getToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		user, status, err := authenticate(c, dir, tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is presented and lets
// anonymous visitors through otherwise.
func OptionalAuth(dir store.Directory, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := getToken(c)
		if err != nil {
			c.Next()
			return
		}
		user, status, err := authenticate(c, dir, tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func authenticate(c *gin.Context, dir store.Directory, tokenString, jwtSecret string) (*model.User, int, error) {
	claims, err := parseToken(tokenString, jwtSecret)
	if err != nil {
		return nil, http.StatusUnauthorized, errors.New("invalid token")
	}
	user, err := dir.User(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, http.StatusUnauthorized, errors.New("user not found")
		}
		return nil, http.StatusInternalServerError, errors.New("failed to load user")
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, http.StatusUnauthorized, errors.New("session expired, please login again")
	}
	if !user.IsActive {
		return nil, http.StatusForbidden, errors.New("account disabled")
	}
	return user, 0, nil
}

// CurrentUser returns the authenticated user, or nil for anonymous visitors.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// RoleCheck requires the user to hold at least the given role.
func RoleCheck(required model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if user.Role.Rank() < required.Rank() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("requires %s role", required)})
			return
		}
		c.Next()
	}
}

// ResourceFunc derives the location of a check from the request.
type ResourceFunc func(c *gin.Context) (permission.Resource, error)

// RequirePermission runs the evaluator before the handler. Configuration
// errors and lookup failures deny like any other refusal.
func RequirePermission(ev *permission.Evaluator, name string, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var res permission.Resource
		if resource != nil {
			var err error
			if res, err = resource(c); err != nil {
				c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
		}
		if !ev.Evaluate(c.Request.Context(), CurrentUser(c), name, res) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("permission %s denied", name)})
			return
		}
		c.Next()
	}
}

func getToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1], nil
		}
	}

	token := c.Query("token")
	if token != "" {
		return token, nil
	}

	return "", errors.New("authorization token required")
}

// Claims represents the JWT claims
type Claims struct {
	UserID       uint       `json:"user_id"`
	Username     string     `json:"username"`
	Role         model.Role `json:"role"`
	TokenVersion int64      `json:"token_version"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for user valid for ttl.
func IssueToken(user *model.User, jwtSecret string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// parseToken parses and validates the JWT token
func parseToken(tokenString, jwtSecret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// CORSMiddleware sets up CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
