package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys for storing request identity
const (
	ContextKeyPrincipal = "principal"
	ContextKeyUserID    = "user_id"
	ContextKeyOrgID     = "org_id"
)

// JWT validation errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Authenticator verifies bearer tokens and turns their claims into a Principal
type Authenticator struct {
	keyFunc   jwt.Keyfunc
	parser    *jwt.Parser
	extractor *identity.Extractor
}

// NewAuthenticator builds the verifier for the configured identity provider.
// Local tokens are HS256 signed with the JWT secret; external tokens are RS256
// signed by the provider and checked against its issuer and audience.
func NewAuthenticator(cfg *config.Config) (*Authenticator, error) {
	switch cfg.Identity.Provider {
	case config.ProviderExternal:
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.Identity.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("invalid identity provider public key: %w", err)
		}
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(cfg.Identity.Issuer),
			jwt.WithExpirationRequired(),
		}
		if cfg.Identity.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Identity.Audience))
		}
		m := cfg.Identity.Claims
		scheme := identity.ExternalScheme{Mapping: identity.ClaimNames{
			Subject:      m.UserID,
			Organization: m.OrgID,
			Roles:        m.Roles,
			Teams:        m.Teams,
		}}
		return &Authenticator{
			keyFunc:   func(*jwt.Token) (interface{}, error) { return key, nil },
			parser:    jwt.NewParser(opts...),
			extractor: identity.NewExtractor(scheme),
		}, nil

	default:
		secret := []byte(cfg.JWT.Secret)
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		}
		if cfg.JWT.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWT.Issuer))
		}
		return &Authenticator{
			keyFunc:   func(*jwt.Token) (interface{}, error) { return secret, nil },
			parser:    jwt.NewParser(opts...),
			extractor: identity.NewExtractor(identity.LocalScheme{}),
		}, nil
	}
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's Principal in the context
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			a.reject(c, "missing_token", apierrors.ErrUnauthorizedError)
			return
		}

		claims, err := a.verify(tokenString)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				a.reject(c, "expired", apierrors.ErrTokenExpiredError)
			} else {
				a.reject(c, "invalid_signature", apierrors.ErrInvalidCredentialsError)
			}
			return
		}

		principal, err := a.extractor.Extract(claims)
		if err != nil {
			a.reject(c, "malformed_claims", apierrors.FromError(err))
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Set(ContextKeyUserID, principal.UserID.String())
		c.Set(ContextKeyOrgID, principal.OrgID.String())
		c.Next()
	}
}

func (a *Authenticator) reject(c *gin.Context, reason string, apiErr *apierrors.APIError) {
	monitoring.RecordIdentityRejection(a.extractor.Scheme(), reason)
	logging.LogSecurityEvent("token_rejected", "", c.ClientIP(), reason)
	respondWithError(c, apiErr)
	c.Abort()
}

// verify checks the signature and registered claims of tokenString
func (a *Authenticator) verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// GetPrincipal returns the authenticated caller, or nil outside Authenticate
func GetPrincipal(c *gin.Context) *identity.Principal {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	p, _ := v.(*identity.Principal)
	return p
}

// RespondError writes err in the standard error envelope
func RespondError(c *gin.Context, err error) {
	respondWithError(c, apierrors.FromError(err))
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	reqIDStr := c.GetString("request_id")
	corrIDStr := c.GetString("correlation_id")
	if corrIDStr == "" {
		corrIDStr = reqIDStr
	}

	response := apierrors.NewErrorResponse(
		err,
		reqIDStr,
		corrIDStr,
		c.Request.URL.Path,
		c.Request.Method,
	)

	c.JSON(response.Error.HTTPStatus, response)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID propagates an upstream correlation ID, falling back to the request ID
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString("request_id")
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Correlation-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
