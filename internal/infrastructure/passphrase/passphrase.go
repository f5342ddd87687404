// Package passphrase obtains the encryption secret without ever placing it on
// a command line.
package passphrase

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"

	"github.com/semmidev/keepsake/internal/domain"
)

var ErrMismatch = errors.New("passphrases do not match")

// FromFile validates a passphrase file. The cipher reads the file itself.
func FromFile(path string) (domain.Passphrase, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Passphrase{}, domain.EncryptionError("passphrase file", err, "")
	}
	if info.IsDir() || info.Size() == 0 {
		return domain.Passphrase{}, domain.EncryptionError("passphrase file", fmt.Errorf("%s is empty or not a file", path), "")
	}
	return domain.Passphrase{File: path}, nil
}

// Prompter reads a passphrase interactively from a terminal.
type Prompter struct {
	In  *os.File
	Out io.Writer
}

func NewPrompter() (*Prompter, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, domain.EncryptionError("open terminal", err, "")
	}
	return &Prompter{In: tty, Out: tty}, nil
}

func (p *Prompter) Close() error {
	return p.In.Close()
}

// Ask prompts for a passphrase. When confirm is set it is asked twice.
func (p *Prompter) Ask(confirm bool) (domain.Passphrase, error) {
	first, err := p.read("Passphrase: ")
	if err != nil {
		return domain.Passphrase{}, err
	}
	if len(first) == 0 {
		return domain.Passphrase{}, domain.EncryptionError("read passphrase", errors.New("empty passphrase"), "")
	}
	if confirm {
		second, err := p.read("Repeat passphrase: ")
		if err != nil {
			wipe(first)
			return domain.Passphrase{}, err
		}
		same := string(first) == string(second)
		wipe(second)
		if !same {
			wipe(first)
			return domain.Passphrase{}, domain.EncryptionError("read passphrase", ErrMismatch, "")
		}
	}
	return domain.Passphrase{Secret: first}, nil
}

func (p *Prompter) read(prompt string) ([]byte, error) {
	fmt.Fprint(p.Out, prompt)
	defer fmt.Fprintln(p.Out)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return nil, domain.EncryptionError("read passphrase", err, "")
		}
		return b, nil
	}

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.EncryptionError("read passphrase", err, "")
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Strength is a 0-100 score with human-readable feedback.
type Strength struct {
	Score    int
	Feedback []string
}

func (s Strength) Weak() bool {
	return s.Score < 40
}

var commonPatterns = []string{"123", "abc", "password", "qwerty"}

// Evaluate scores a passphrase by length, character variety, common
// patterns and repetition.
func Evaluate(secret []byte) Strength {
	s := string(secret)
	var st Strength

	switch n := len([]rune(s)); {
	case n >= 12:
		st.Score += 30
	case n >= 8:
		st.Score += 20
		st.Feedback = append(st.Feedback, "Consider using a longer passphrase (12+ characters)")
	default:
		st.Feedback = append(st.Feedback, "Passphrase should be at least 8 characters long")
	}

	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			special = true
		}
	}
	variety := 0
	for _, ok := range []bool{lower, upper, digit, special} {
		if ok {
			variety++
		}
	}
	switch variety {
	case 4:
		st.Score += 40
	case 3:
		st.Score += 30
		st.Feedback = append(st.Feedback, "Consider adding more character types")
	case 2:
		st.Score += 20
		st.Feedback = append(st.Feedback, "Use uppercase, lowercase, numbers, and symbols")
	default:
		st.Score += 10
		st.Feedback = append(st.Feedback, "Passphrase should include different character types")
	}

	lowered := strings.ToLower(s)
	common := false
	for _, p := range commonPatterns {
		if strings.Contains(lowered, p) {
			common = true
			break
		}
	}
	if common {
		st.Score = max(st.Score-20, 0)
		st.Feedback = append(st.Feedback, "Avoid common patterns and dictionary words")
	} else {
		st.Score += 20
	}

	if hasRepeat(s) {
		st.Score = max(st.Score-10, 0)
		st.Feedback = append(st.Feedback, "Avoid repeating patterns")
	} else {
		st.Score += 10
	}

	return st
}

// hasRepeat reports whether any three-byte run occurs again later.
func hasRepeat(s string) bool {
	for i := 0; i+3 <= len(s); i++ {
		if strings.Contains(s[i+3:], s[i:i+3]) {
			return true
		}
	}
	return false
}
