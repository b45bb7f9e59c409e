package usecase

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// stateAudience marks tokens minted for the OAuth state parameter so they can
// never be replayed as bearer tokens, and vice versa.
const stateAudience = "email-oauth-state"

var ErrInvalidToken = errors.New("invalid token")

// AuthUsecase verifies caller identity and signs the OAuth state parameter.
type AuthUsecase interface {
	// ValidateToken verifies an HS256 bearer token and returns its user id.
	ValidateToken(tokenString string) (string, error)
	SignState(userID string) (string, error)
	ParseState(state string) (string, error)
}

type authUsecase struct {
	secret []byte
}

func NewAuthUsecase(secret string) AuthUsecase {
	return &authUsecase{secret: []byte(secret)}
}

func (u *authUsecase) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, u.keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if aud, _ := claims.GetAudience(); containsString(aud, stateAudience) {
		return "", ErrInvalidToken
	}

	// The auth service has issued both userId and id over time.
	for _, key := range []string{"userId", "id", "sub"} {
		if userID, ok := claims[key].(string); ok && userID != "" {
			return userID, nil
		}
	}
	return "", ErrInvalidToken
}

// SignState encodes userID into a signed state value. The same user always
// yields the same state.
func (u *authUsecase) SignState(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		Audience: jwt.ClaimStrings{stateAudience},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ParseState(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, u.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience))
	if err != nil {
		return "", fmt.Errorf("parse state: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("state carries no user id")
	}
	return claims.Subject, nil
}

func (u *authUsecase) keyFunc(*jwt.Token) (interface{}, error) {
	return u.secret, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
