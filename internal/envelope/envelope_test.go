package envelope

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIterations keeps the KDF fast in tests; correctness does not
// depend on the count.
const testIterations = 1000

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	return NewSealer(zerolog.Nop(), testIterations)
}

func writeArchive(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestSealOpen_RoundTrip(t *testing.T) {
	// Sizes straddle the chunking boundaries: empty, sub-block, exactly
	// one chunk, and spilling into a second chunk.
	for _, size := range []int{0, 5, 16, 1000, 64 * 1024, 64*1024 + 7} {
		s := newTestSealer(t)
		archive := writeArchive(t, size)
		original, err := os.ReadFile(archive)
		require.NoError(t, err)

		envelopePath, err := s.Seal(archive, "correct horse")
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, archive+".enc", envelopePath)

		// Plaintext must not outlive a successful seal.
		_, err = os.Stat(archive)
		assert.True(t, os.IsNotExist(err))

		out := filepath.Join(t.TempDir(), "restored.tar.gz")
		require.NoError(t, s.Open(envelopePath, "correct horse", out))

		restored, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, original, restored, "size %d", size)
	}
}

func TestSeal_MissingPassphrase(t *testing.T) {
	s := newTestSealer(t)
	archive := writeArchive(t, 128)

	_, err := s.Seal(archive, "")
	assert.ErrorIs(t, err, ErrMissingPassphrase)

	// The plaintext archive stays in place on failure.
	_, statErr := os.Stat(archive)
	assert.NoError(t, statErr)
}

func TestSeal_InputMissing_KeepsNothing(t *testing.T) {
	s := newTestSealer(t)
	missing := filepath.Join(t.TempDir(), "nope.tar.gz")

	_, err := s.Seal(missing, "pw")
	assert.Error(t, err)

	_, statErr := os.Stat(missing + ".enc")
	assert.True(t, os.IsNotExist(statErr), "no envelope should be produced")
	_, statErr = os.Stat(missing + ".enc.partial")
	assert.True(t, os.IsNotExist(statErr), "no partial file should survive")
}

func TestOpen_WrongPassphrase(t *testing.T) {
	s := newTestSealer(t)
	archive := writeArchive(t, 4096)

	envelopePath, err := s.Seal(archive, "right")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "restored.tar.gz")
	err = s.Open(envelopePath, "wrong", out)
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	// Never hand back silently corrupted output.
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	s := newTestSealer(t)
	archive := writeArchive(t, 4096)

	envelopePath, err := s.Seal(archive, "pw")
	require.NoError(t, err)

	data, err := os.ReadFile(envelopePath)
	require.NoError(t, err)
	data[headerLen+100] ^= 0xff
	require.NoError(t, os.WriteFile(envelopePath, data, 0600))

	out := filepath.Join(t.TempDir(), "restored.tar.gz")
	err = s.Open(envelopePath, "pw", out)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_CorruptHeader(t *testing.T) {
	s := newTestSealer(t)
	path := filepath.Join(t.TempDir(), "garbage.tar.gz.enc")
	// headerLen + macLen + four cipher blocks, so the length checks pass
	// and the magic check is what rejects it.
	garbage := make([]byte, headerLen+macLen+64)
	_, err := rand.Read(garbage)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, garbage, 0600))

	err = s.Open(path, "pw", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrCorruptEnvelope)
}

func TestOpen_Truncated(t *testing.T) {
	s := newTestSealer(t)
	path := filepath.Join(t.TempDir(), "short.tar.gz.enc")
	require.NoError(t, os.WriteFile(path, magic[:], 0600))

	err := s.Open(path, "pw", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrCorruptEnvelope)
}

func TestOpen_FileNotFound_IsNotCryptoError(t *testing.T) {
	s := newTestSealer(t)
	err := s.Open(filepath.Join(t.TempDir(), "absent.enc"), "pw", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWrongPassphrase)
	assert.NotErrorIs(t, err, ErrCorruptEnvelope)
}

func TestSaltVariesPerArchive(t *testing.T) {
	s := newTestSealer(t)

	a1 := writeArchive(t, 64)
	a2 := writeArchive(t, 64)
	e1, err := s.Seal(a1, "pw")
	require.NoError(t, err)
	e2, err := s.Seal(a2, "pw")
	require.NoError(t, err)

	h1, err := os.ReadFile(e1)
	require.NoError(t, err)
	h2, err := os.ReadFile(e2)
	require.NoError(t, err)

	assert.NotEqual(t, h1[magicLen+4:magicLen+4+saltLen], h2[magicLen+4:magicLen+4+saltLen])
}
