// Package captcha issues and checks human-verification challenges: locally
// rendered text and arithmetic images, and Google reCAPTCHA v2/v3 tokens.
package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Kind identifies a locally generated challenge style.
type Kind string

const (
	KindText Kind = "text"
	KindMath Kind = "math"
)

// Gate kinds accepted on login alongside the local ones.
const (
	GateCustom      = "custom"
	GateRecaptchaV2 = "recaptcha_v2"
	GateRecaptchaV3 = "recaptcha_v3"
)

const (
	textAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	textLength   = 5
)

// ParseKind maps a query value to a Kind, falling back to def when empty.
func ParseKind(s string, def Kind) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case KindText:
		return KindText, nil
	case KindMath:
		return KindMath, nil
	default:
		return "", fmt.Errorf("unsupported captcha type %q", s)
	}
}

// Challenge is one issued CAPTCHA. Answer never leaves the server.
type Challenge struct {
	Kind     Kind    `json:"type"`
	Question string  `json:"question,omitempty"`
	Answer   string  `json:"-"`
	Image    string  `json:"image"`
	Audio    *string `json:"audio,omitempty"`
}

// Narrator produces an audio rendering of a challenge, returned as a data URL.
// No speech backend ships with the service; without one the audio field is
// left out of the challenge body.
type Narrator interface {
	Narrate(text string) (string, error)
}

// Generator issues challenges.
type Generator struct {
	renderer *Renderer
	narrator Narrator
}

// NewGenerator returns a Generator. narrator may be nil.
func NewGenerator(narrator Narrator) *Generator {
	return &Generator{
		renderer: NewRenderer(),
		narrator: narrator,
	}
}

// Issue creates a fresh challenge of the given kind.
func (g *Generator) Issue(kind Kind) (*Challenge, error) {
	var question, answer string
	var err error

	switch kind {
	case KindMath:
		question, answer, err = mathProblem()
	case KindText:
		answer, err = randomText(textLength)
		question = answer
	default:
		return nil, fmt.Errorf("unsupported captcha type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate captcha: %w", err)
	}

	img, err := g.renderer.Render(question)
	if err != nil {
		return nil, fmt.Errorf("failed to render captcha: %w", err)
	}

	c := &Challenge{
		Kind:   kind,
		Answer: answer,
		Image:  img,
	}
	// the text question is the answer itself, so only the image is shown
	if kind == KindMath {
		c.Question = question
	}

	if g.narrator != nil {
		if audio, err := g.narrator.Narrate(question); err == nil {
			c.Audio = &audio
		}
	}

	return c, nil
}

// Verify compares a user response with the expected answer, ignoring case
// and surrounding whitespace. Either side empty never matches.
func Verify(input, expected string) bool {
	input = strings.TrimSpace(input)
	expected = strings.TrimSpace(expected)
	if input == "" || expected == "" {
		return false
	}
	return strings.EqualFold(input, expected)
}

func randomText(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := randIntn(len(textAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(textAlphabet[idx])
	}
	return b.String(), nil
}

func mathProblem() (question, answer string, err error) {
	op, err := randIntn(3)
	if err != nil {
		return "", "", err
	}

	switch op {
	case 0:
		a, b, err := randPair(1, 20, 1, 20)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("%d + %d", a, b), strconv.Itoa(a + b), nil
	case 1:
		a, err := randRange(10, 30)
		if err != nil {
			return "", "", err
		}
		b, err := randRange(1, a-1)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("%d - %d", a, b), strconv.Itoa(a - b), nil
	default:
		a, b, err := randPair(2, 9, 2, 9)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("%d × %d", a, b), strconv.Itoa(a * b), nil
	}
}

func randPair(aMin, aMax, bMin, bMax int) (int, int, error) {
	a, err := randRange(aMin, aMax)
	if err != nil {
		return 0, 0, err
	}
	b, err := randRange(bMin, bMax)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// randRange returns a uniform integer in [lo, hi].
func randRange(lo, hi int) (int, error) {
	n, err := randIntn(hi - lo + 1)
	if err != nil {
		return 0, err
	}
	return lo + n, nil
}

func randIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
