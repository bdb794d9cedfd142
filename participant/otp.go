package participant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
)

// OTPSender delivers a plaintext one-time password to a phone number.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, otp string) error
}

// LogSender writes OTPs to the log. It stands in for an SMS gateway in
// development.
type LogSender struct {
	Logger *slog.Logger
}

// SendOTP implements OTPSender.
func (s LogSender) SendOTP(ctx context.Context, phone, otp string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "helper otp issued",
		slog.String("phone", phone),
		slog.String("otp", otp),
	)
	return nil
}

var otpMax = big.NewInt(1_000_000)

// generateOTP returns a uniformly random 6-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashOTP(otp string) string {
	sum := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(sum[:])
}

func otpMatches(hash, otp string) bool {
	return subtle.ConstantTimeCompare([]byte(hash), []byte(hashOTP(otp))) == 1
}
