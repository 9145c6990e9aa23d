package service

import (
	"crypto/rand"
	"math/big"
	"time"
)

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type OrderNumberGenerator interface {
	Next(t time.Time) (string, error)
}

// RandomOrderNumbers produces ORD-YYYYMMDD-XXXX with four random alphanumerics.
type RandomOrderNumbers struct{}

func (RandomOrderNumbers) Next(t time.Time) (string, error) {
	suffix := make([]byte, 4)
	base := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return FormatOrderNumber(t, string(suffix)), nil
}

func FormatOrderNumber(t time.Time, suffix string) string {
	return "ORD-" + t.UTC().Format("20060102") + "-" + suffix
}
