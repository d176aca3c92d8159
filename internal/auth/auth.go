package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/xtrntr/parimut/internal/db"
	"github.com/xtrntr/parimut/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles user registration, login, and token verification
type AuthService struct {
	DB              *db.DB
	Secret          []byte
	StartingBalance float64
	// Admins lists usernames that register with the admin role. Resolved
	// once at registration; the stored role is authoritative afterwards.
	Admins map[string]bool
}

// Claims is the verified identity carried by a token
type Claims struct {
	UserID   int
	Username string
	Role     string
}

// NewAuthService creates a new auth service
func NewAuthService(database *db.DB, secret string, startingBalance float64, admins []string) *AuthService {
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[a] = true
	}
	return &AuthService{
		DB:              database,
		Secret:          []byte(secret),
		StartingBalance: startingBalance,
		Admins:          adminSet,
	}
}

// Register creates a new user with hashed password and the starting balance
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := models.RoleUser
	if s.Admins[username] {
		role = models.RoleAdmin
	}

	user, err := s.DB.CreateUser(ctx, username, string(hashedPassword), role, s.StartingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT carrying the user's role
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.DB.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	return s.IssueToken(user)
}

// IssueToken signs a JWT for a user
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// VerifyToken extracts the claims from a JWT
func (s *AuthService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("token missing user_id")
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)

	return &Claims{UserID: int(userID), Username: username, Role: role}, nil
}
