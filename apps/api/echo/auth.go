package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/assignment"
)

const jwtContextKey = "viewerToken"

// newJWTConfig returns the JWT auth middleware config.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT. Token
// minting and tenant resolution live upstream; this API only consumes them.
type Claims struct {
	jwt.StandardClaims
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	IsStudent bool   `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher bool   `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin   bool   `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

func GetViewerClaims(conf *core.Config, viewer assignment.Viewer) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   viewer.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		TenantID:  viewer.TenantID,
		Name:      viewer.Name,
		Email:     viewer.Email,
		IsStudent: viewer.IsStudent,
		IsTeacher: viewer.IsTeacher,
		IsAdmin:   viewer.IsAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(conf.SecretKey))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextViewer resolves the acting principal from the request claims.
func getContextViewer(ctx echo.Context) (assignment.Viewer, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return assignment.Viewer{}, err
	}
	return assignment.Viewer{
		ID:        claims.Subject,
		TenantID:  claims.TenantID,
		Name:      claims.Name,
		Email:     claims.Email,
		IsAdmin:   claims.IsAdmin,
		IsTeacher: claims.IsTeacher,
		IsStudent: claims.IsStudent,
	}, nil
}
