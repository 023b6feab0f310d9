package auth

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 12

	friendCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	friendCodeLength   = 6
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

// CheckPassword reports whether password matches the stored hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ErrNoFriendCode means every attempt produced a code already in use.
var ErrNoFriendCode = errors.New("could not generate a unique friend code")

// NewFriendCode returns a random six character code from A-Z0-9.
func NewFriendCode() (string, error) {
	code := make([]byte, friendCodeLength)
	max := big.NewInt(int64(len(friendCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = friendCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// UniqueFriendCode draws codes until taken reports one as free.
func UniqueFriendCode(taken func(code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := NewFriendCode()
		if err != nil {
			return "", err
		}
		exists, err := taken(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrNoFriendCode
}
