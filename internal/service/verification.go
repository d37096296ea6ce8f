package service

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"

	"salonbook/internal/models"

	"github.com/google/uuid"
)

var codeSpace = big.NewInt(1_000_000)

// newVerification returns a 6-digit code and an opaque link token.
func newVerification() (code, token string, err error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", "", fmt.Errorf("generate verification code: %w", err)
	}
	code = fmt.Sprintf("%0"+strconv.Itoa(models.VerificationCodeLength)+"d", n.Int64())
	return code, uuid.NewString(), nil
}

func codesEqual(stored, given string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
