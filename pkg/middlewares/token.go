package middlewares

import (
	"strings"

	t_token "clinic_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
	//TokenClaims parsed *token.Claims, set c.locals name
	//websocket.Conn 拿不到 UserContext, 只能從 locals 取
	TokenClaims = "claims"
)

// JWTMiddleware validates the JWT from the Authorization header, the auth query or the auth_token cookie
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")

		// websocket 無法帶 header, 改用 query
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}

		// 如果查詢參數中沒有 token，則嘗試從 Cookie 中獲取
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		// 如果仍然沒有 token，則返回未授權錯誤
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWT(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenMemberID, claims.UserID)
		c.Locals(TokenClaims, claims)
		c.SetUserContext(t_token.WithClaims(c.UserContext(), claims))

		return c.Next()
	}
}
