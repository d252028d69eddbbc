package secret

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testSecret = "uV3pXz8qLw2dRt6yBn4mKs9hGc1fJe5a"
	testSalt   = "k8Qz2vXw0tRb5nPm7sLd4cJf9hGy1aEu"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testSecret, testSalt)
	require.NoError(t, err)
	return c
}

func TestNewCipherRequiresInputs(t *testing.T) {
	_, err := NewCipher("", testSalt)
	require.Error(t, err)
	_, err = NewCipher(testSecret, "")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{"rt-123", "", "ya29." + strings.Repeat("x", 200), "żółć-ünïcode"} {
		sealed, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, sealed)
		require.Len(t, strings.Split(sealed, "."), 3)

		opened, err := c.Decrypt(sealed)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t)

	for _, input := range []string{
		"",
		"not-a-ciphertext",
		"only.two",
		"a.b.c.d",
		"!!!.!!!.!!!",
		"YWJj.YWJj.YWJj",
	} {
		_, err := c.Decrypt(input)
		require.Error(t, err, "input %q", input)
		require.True(t, errors.Is(err, ErrDecryption), "input %q", input)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt("rt-123")
	require.NoError(t, err)

	parts := strings.Split(sealed, ".")
	flipped := []byte(parts[2])
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(flipped)

	_, err = c.Decrypt(tampered)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDecryption))
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewCipher("Wd7cNf2kQx5vZr9tLp4mGs8hJb1yEa6u", testSalt)
	require.NoError(t, err)

	sealed, err := other.Encrypt("rt-123")
	require.NoError(t, err)

	_, err = c.Decrypt(sealed)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDecryption))
}
