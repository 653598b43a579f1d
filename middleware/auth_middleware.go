package middleware

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

func AdminRequired() fiber.Handler {
	return requireRole(models.RoleAdmin, "Forbidden: Admin access required")
}

func InstructorRequired() fiber.Handler {
	return requireRole(models.RoleInstructor, "Forbidden: Instructor access required")
}

func requireRole(role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := CallerFrom(c)
		if err != nil || caller.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"status": "error", "message": message})
		}
		return c.Next()
	}
}

// CallerFrom reads the identity Protected stored on the request.
func CallerFrom(c *fiber.Ctx) (services.Caller, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return services.Caller{}, errors.New("no token on request")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Caller{}, errors.New("unexpected claims type")
	}
	return callerFromClaims(claims)
}

// ParseToken validates a raw HS256 token, as sent in the websocket auth frame.
func ParseToken(secret, tokenString string) (services.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return services.Caller{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return services.Caller{}, errors.New("invalid token")
	}
	return callerFromClaims(claims)
}

func callerFromClaims(claims jwt.MapClaims) (services.Caller, error) {
	raw, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return services.Caller{}, fmt.Errorf("invalid user_id claim: %w", err)
	}
	role, _ := claims["role"].(string)
	return services.Caller{UserID: userID, Role: role}, nil
}
