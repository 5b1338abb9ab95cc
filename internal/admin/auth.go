package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Profile 保存身份提供方用户的角色信息
type Profile struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	IsAdmin   bool      `gorm:"not null" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidSession  = errors.New("invalid session")
	ErrNotAdmin        = errors.New("admin access required")
	ErrRoleUnavailable = errors.New("failed to verify role")
)

// Claims 是身份提供方签发的访问令牌中我们关心的部分
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator 校验Bearer令牌并确认管理员身份
type Authenticator struct {
	db     *gorm.DB
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(db *gorm.DB, cfg config.AuthConfig) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{db: db, secret: []byte(cfg.JWTSecret), parser: jwt.NewParser(opts...)}
}

// BearerToken 从 Authorization 头中取出令牌
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// VerifyToken 校验签名与有效期，返回用户ID
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}
	var claims Claims
	token, err := a.parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}

// RequireAdmin 校验令牌并确认用户在 profiles 中被标记为管理员，返回用户ID
func (a *Authenticator) RequireAdmin(ctx context.Context, authHeader string) (string, error) {
	userID, err := a.VerifyToken(BearerToken(authHeader))
	if err != nil {
		return "", err
	}
	var p Profile
	err = a.db.WithContext(ctx).Where("id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotAdmin
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRoleUnavailable, err)
	}
	if !p.IsAdmin {
		return "", ErrNotAdmin
	}
	return userID, nil
}
