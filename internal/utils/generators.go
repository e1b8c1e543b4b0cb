package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTraceID builds the opaque id attached to internal-error responses
// so a support request can be matched to log lines.
func GenerateTraceID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("trc_%d_%09d", timestamp, randomNum.Int64())
}
