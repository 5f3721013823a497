package businessflow

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
	"github.com/kairoshi/tsubame/utils"
)

// shortCodeAlphabet is the charset for generated codes. Alphanumeric and
// case-sensitive, with easily-confused glyphs (0, O, 1, l, I) removed.
const shortCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// maxGenerationAttempts bounds the collision retry loop before giving up
const maxGenerationAttempts = 5

// ShortCodeGenerator produces unused short codes of a requested length.
// Codes are random enough to resist trivial enumeration but are not secrets.
type ShortCodeGenerator interface {
	Generate(ctx context.Context, length int) (string, error)
	GenerateDefault(ctx context.Context) (string, error)
}

type ShortCodeGeneratorImpl struct {
	repo          repository.ShortURLRepository
	defaultLength int
}

func NewShortCodeGenerator(repo repository.ShortURLRepository, defaultLength int) ShortCodeGenerator {
	if defaultLength < utils.MinShortCodeLength {
		defaultLength = utils.MinShortCodeLength
	}
	return &ShortCodeGeneratorImpl{repo: repo, defaultLength: defaultLength}
}

// GenerateDefault generates a code of the configured default length
func (g *ShortCodeGeneratorImpl) GenerateDefault(ctx context.Context) (string, error) {
	return g.Generate(ctx, g.defaultLength)
}

// Generate returns a code of exactly length characters that no short URL is
// using yet. After maxGenerationAttempts occupied candidates it fails with
// ErrCodeGenerationExhausted.
func (g *ShortCodeGeneratorImpl) Generate(ctx context.Context, length int) (string, error) {
	if length < utils.MinShortCodeLength {
		length = g.defaultLength
	}

	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		code, err := randomCode(length)
		if err != nil {
			return "", NewBusinessError("CODE_GENERATION_FAILED", "Failed to generate short code", err)
		}

		occupied, err := g.repo.Exists(ctx, models.ShortURLFilter{ShortCode: &code})
		if err != nil {
			return "", NewBusinessError("CODE_OCCUPANCY_CHECK_FAILED", "Failed to check short code occupancy", err)
		}
		if !occupied {
			return code, nil
		}
	}

	return "", NewBusinessError("CODE_GENERATION_EXHAUSTED",
		fmt.Sprintf("Gave up after %d collisions", maxGenerationAttempts), ErrCodeGenerationExhausted)
}

// randomCode samples length characters from the alphabet using rejection
// sampling so every character is equally likely.
func randomCode(length int) (string, error) {
	// Largest multiple of len(alphabet) below 256; bytes at or above it are
	// rejected to avoid modulo bias.
	limit := byte(256 - 256%len(shortCodeAlphabet))

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, shortCodeAlphabet[int(b)%len(shortCodeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
