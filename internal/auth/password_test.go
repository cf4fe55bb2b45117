package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps the argon2 cost low for tests that hash repeatedly.
var cheap = Params{Memory: 1024, Time: 1, Threads: 1, KeyLen: 16}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("test-password-123")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$"))
	assert.NoError(t, ValidateHash(hash))

	ok, err := VerifyPassword("test-password-123", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_UniquePerCall(t *testing.T) {
	t.Parallel()

	h1, err := HashPasswordWithParams("same", cheap)
	require.NoError(t, err)
	h2, err := HashPasswordWithParams("same", cheap)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "salt is random")
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPasswordWithParams("correct-horse", cheap)
	require.NoError(t, err)

	tests := []struct {
		password string
		want     bool
	}{
		{"correct-horse", true},
		{"wrong-horse", false},
		{"", false},
		{"correct-horse ", false},
	}
	for _, tt := range tests {
		ok, err := VerifyPassword(tt.password, hash)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, tt.password)
	}
}

func TestVerifyPassword_ParamsComeFromHash(t *testing.T) {
	t.Parallel()

	hash, err := HashPasswordWithParams("pw", cheap)
	require.NoError(t, err)
	assert.Contains(t, hash, "m=1024,t=1,p=1")

	ok, err := VerifyPassword("pw", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"too few parts", "$argon2id$v=19$m=1,t=1,p=1$salt"},
		{"wrong algorithm", "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad version", "$argon2id$v=x$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"unsupported version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$memory$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
		{"bad key", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$!!!"},
		{"empty key", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassword("pw", tt.hash)
			assert.Error(t, err)
			assert.Error(t, ValidateHash(tt.hash))
		})
	}
}

func scripted(answers ...string) (Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return Prompter{
		Out: &out,
		Read: func() ([]byte, error) {
			if len(answers) == 0 {
				return nil, errors.New("no input")
			}
			a := answers[0]
			answers = answers[1:]
			return []byte(a), nil
		},
	}, &out
}

func TestPromptAndConfirm(t *testing.T) {
	t.Parallel()

	p, out := scripted("hunter2", "hunter2")
	pw, err := p.PromptAndConfirm()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	assert.Contains(t, out.String(), "Dashboard password: ")
	assert.Contains(t, out.String(), "Confirm password: ")
}

func TestPromptAndConfirm_Errors(t *testing.T) {
	t.Parallel()

	p, _ := scripted("")
	_, err := p.PromptAndConfirm()
	assert.ErrorIs(t, err, ErrEmptyPassword)

	p, _ = scripted("a", "b")
	_, err = p.PromptAndConfirm()
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	p, _ = scripted("a")
	_, err = p.PromptAndConfirm()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read password")
}
