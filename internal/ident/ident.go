// Package ident generates session, learner, task and connection identifiers.
package ident

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLen   = 8
	attempts  = 10
)

var ErrCodeSpaceExhausted = errors.New("failed to generate unique session code")

// NewSessionCode returns an 8-char code from an unambiguous alphabet, retrying
// while exists reports a collision.
func NewSessionCode(exists func(string) bool) (string, error) {
	for i := 0; i < attempts; i++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = codeChars[int(b[i])%len(codeChars)]
		}
		codeStr := string(code)

		if exists == nil || !exists(codeStr) {
			return codeStr, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func NewLearnerID() string {
	return "l_" + uuid.New().String()[:8]
}

func NewTaskID() string {
	return "t_" + uuid.New().String()[:8]
}

func NewConnID() string {
	return "c_" + uuid.New().String()
}

func NewMentorID() string {
	return "mentor_" + uuid.New().String()[:8]
}

// Gravatar returns the identicon URL derived from a display name.
func Gravatar(name string) string {
	sum := md5.Sum([]byte(strings.ToLower(name + "@example.com")))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}
