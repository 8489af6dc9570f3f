package verification

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

const (
	MinCodeLength = 4
	MaxCodeLength = 10
)

// Generator выдает цифровые коды заданной длины
type Generator interface {
	Generate(length int) (string, error)
}

// CryptoGenerator берет случайность из crypto/rand
type CryptoGenerator struct {
	reader io.Reader
}

// NewCryptoGenerator создает генератор поверх crypto/rand.Reader
func NewCryptoGenerator() *CryptoGenerator {
	return &CryptoGenerator{reader: rand.Reader}
}

// Generate возвращает код, равномерно распределенный на [10^(length-1), 10^length-1]
func (g *CryptoGenerator) Generate(length int) (string, error) {
	return generateFrom(g.reader, length)
}

// GenerateCode: Generate поверх crypto/rand.Reader
func GenerateCode(length int) (string, error) {
	return generateFrom(rand.Reader, length)
}

func generateFrom(reader io.Reader, length int) (string, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return "", newError(KindInvalidLength, fmt.Sprintf("code length %d out of range [%d,%d]", length, MinCodeLength, MaxCodeLength), nil)
	}

	low := int64(1)
	for i := 1; i < length; i++ {
		low *= 10
	}
	span := big.NewInt(9 * low)

	n, err := rand.Int(reader, span)
	if err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return strconv.FormatInt(n.Int64()+low, 10), nil
}
