package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a pre-computed bcrypt hash used when a login username isn't found.
// Running bcrypt against it (instead of returning early) keeps response time
// constant, preventing timing-based username enumeration.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

/* ─── Tokens ─────────────────────────────────────────────────────────── */

// authClaims is the JWT payload: the standard claims plus our user ID.
type authClaims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// issueToken signs an HS256 token for userID that expires after ttl.
func issueToken(userID int, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := authClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseToken verifies the signature and expiry and returns the user ID.
func parseToken(tokenString string, secret []byte) (int, error) {
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, errors.New("invalid token")
	}
	return claims.UserID, nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// register creates an account with an empty profile and returns a token.
// POST /api/register (public).
func (h *Handler) register(c *gin.Context) {
	var body registerRequest
	if !bindJSON(c, &body) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(c, err, "failed to register")
		return
	}

	var u user
	err = pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		var err error
		u, err = queryOne[user](c, tx,
			`INSERT INTO users (username, email, password, full_name)
			 VALUES (@username, @email, @password, @fullName)
			 RETURNING *`,
			pgx.NamedArgs{
				"username": strings.TrimSpace(body.Username),
				"email":    strings.ToLower(strings.TrimSpace(body.Email)),
				"password": string(hash),
				"fullName": strings.TrimSpace(body.FullName),
			})
		if err != nil {
			if isUniqueViolation(err) {
				return errUsernameOrEmailUsed
			}
			return err
		}
		_, err = tx.Exec(c, "INSERT INTO user_profiles (user_id) VALUES (@userID)",
			pgx.NamedArgs{"userID": u.ID})
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to register")
		return
	}

	token, err := issueToken(u.ID, h.jwtSecret, h.tokenTTL, h.clock())
	if err != nil {
		h.fail(c, err, "failed to issue token")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
}

// login verifies username/password and returns a signed token.
// POST /api/login (public).
func (h *Handler) login(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}

	u, lookupErr := queryOne[user](c, h.db,
		"SELECT * FROM users WHERE username = @username",
		pgx.NamedArgs{"username": body.Username})

	// Always run bcrypt so response time does not reveal whether the username exists.
	hashToCheck := string(dummyHash)
	if lookupErr == nil {
		hashToCheck = u.Password
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hashToCheck), []byte(body.Password))

	if lookupErr != nil || compareErr != nil {
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := issueToken(u.ID, h.jwtSecret, h.tokenTTL, h.clock())
	if err != nil {
		h.fail(c, err, "failed to issue token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": u.ID})
}

// authMiddleware validates the bearer JWT and sets user_id on the context.
// Browsers cannot set headers on WebSocket upgrades, so ?token= is accepted too.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			if !strings.HasPrefix(header, "Bearer ") {
				apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
				c.Abort()
				return
			}
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		userID, err := parseToken(token, h.jwtSecret)
		if err != nil {
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
