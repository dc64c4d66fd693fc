// Package envelope seals backup archives with a passphrase-derived key.
//
// Envelope layout:
//
//	magic    [8]byte  "SVENV1\x00\x00"
//	iter     uint32   big endian PBKDF2 iteration count
//	salt     [16]byte per-archive random salt
//	iv       [16]byte AES-CBC initialization vector
//	payload  []byte   AES-256-CBC ciphertext, PKCS#7 padded
//	mac      [32]byte HMAC-SHA256 over everything above
//
// The envelope is self-describing: decryption needs only the passphrase
// and the file itself. Encrypt-then-MAC with an independent MAC key keeps
// a wrong passphrase or a flipped bit detectable before any plaintext is
// handed back.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is deliberately slow to resist offline brute
	// force on weak passphrases.
	DefaultIterations = 600_000

	magicLen = 8
	saltLen  = 16
	ivLen    = aes.BlockSize
	keyLen   = 32
	macLen   = sha256.Size

	headerLen = magicLen + 4 + saltLen + ivLen

	maxIterations = 100_000_000
)

var magic = [magicLen]byte{'S', 'V', 'E', 'N', 'V', '1', 0, 0}

var (
	// ErrMissingPassphrase is returned when no passphrase is configured.
	ErrMissingPassphrase = errors.New("no backup passphrase configured")

	// ErrWrongPassphrase is returned when the derived key fails to
	// authenticate the ciphertext. The envelope may instead be damaged;
	// the two cases are cryptographically indistinguishable.
	ErrWrongPassphrase = errors.New("wrong passphrase or damaged envelope")

	// ErrCorruptEnvelope is returned when the file is structurally not an
	// envelope at all.
	ErrCorruptEnvelope = errors.New("corrupt envelope")
)

// CipherError wraps a failure of the cipher machinery itself, as opposed
// to a wrong passphrase or unreadable input.
type CipherError struct {
	Op  string
	Err error
}

func (e *CipherError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *CipherError) Unwrap() error { return e.Err }

// Sealer seals and opens archive envelopes.
type Sealer struct {
	logger     zerolog.Logger
	iterations int
}

func NewSealer(logger zerolog.Logger, iterations int) *Sealer {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Sealer{
		logger:     logger.With().Str("component", "envelope").Logger(),
		iterations: iterations,
	}
}

// Seal encrypts archivePath into archivePath+".enc" and removes the
// plaintext. On any failure the plaintext archive is left untouched and
// no partial envelope survives: the backup is then complete but not yet
// secured at rest.
func (s *Sealer) Seal(archivePath, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrMissingPassphrase
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	envelopePath := archivePath + ".enc"
	partial := envelopePath + ".partial"
	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("create envelope: %w", err)
	}
	defer os.Remove(partial)

	if err := s.seal(in, out, passphrase); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close envelope: %w", err)
	}

	if err := os.Rename(partial, envelopePath); err != nil {
		return "", fmt.Errorf("finalize envelope: %w", err)
	}

	// The plaintext must not outlive a successful seal.
	if err := os.Remove(archivePath); err != nil {
		return "", fmt.Errorf("remove plaintext archive: %w", err)
	}

	s.logger.Info().Str("envelope", envelopePath).Int("iterations", s.iterations).Msg("archive sealed")
	return envelopePath, nil
}

func (s *Sealer) seal(in io.Reader, out io.Writer, passphrase string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return &CipherError{Op: "generate salt", Err: err}
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return &CipherError{Op: "generate iv", Err: err}
	}

	encKey, macKey := deriveKeys(passphrase, salt, s.iterations)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return &CipherError{Op: "init cipher", Err: err}
	}
	enc := cipher.NewCBCEncrypter(block, iv)
	mac := hmac.New(sha256.New, macKey)

	header := make([]byte, 0, headerLen)
	header = append(header, magic[:]...)
	header = binary.BigEndian.AppendUint32(header, uint32(s.iterations))
	header = append(header, salt...)
	header = append(header, iv...)

	w := io.MultiWriter(out, mac)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write envelope header: %w", err)
	}

	// Stream-encrypt in block-aligned chunks; the final short block is
	// PKCS#7 padded.
	buf := make([]byte, 64*1024)
	var carry []byte
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			nb := len(carry) / aes.BlockSize * aes.BlockSize
			if nb > 0 {
				enc.CryptBlocks(carry[:nb], carry[:nb])
				if _, err := w.Write(carry[:nb]); err != nil {
					return fmt.Errorf("write ciphertext: %w", err)
				}
				carry = append(carry[:0], carry[nb:]...)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read archive: %w", rerr)
		}
	}

	pad := aes.BlockSize - len(carry)%aes.BlockSize
	for i := 0; i < pad; i++ {
		carry = append(carry, byte(pad))
	}
	enc.CryptBlocks(carry, carry)
	if _, err := w.Write(carry); err != nil {
		return fmt.Errorf("write ciphertext: %w", err)
	}

	if _, err := out.Write(mac.Sum(nil)); err != nil {
		return fmt.Errorf("write mac: %w", err)
	}
	return nil
}

// Open decrypts envelopePath into outputPath. The plaintext is written to
// a temporary file and renamed into place only after the MAC verifies, so
// a wrong passphrase can never leave a silently corrupted archive behind.
func (s *Sealer) Open(envelopePath, passphrase, outputPath string) error {
	if passphrase == "" {
		return ErrMissingPassphrase
	}

	in, err := os.Open(envelopePath)
	if err != nil {
		return fmt.Errorf("open envelope: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat envelope: %w", err)
	}
	cipherLen := info.Size() - headerLen - macLen
	if cipherLen < aes.BlockSize || cipherLen%aes.BlockSize != 0 {
		return fmt.Errorf("%w: truncated file %s", ErrCorruptEnvelope, envelopePath)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(in, header); err != nil {
		return fmt.Errorf("read envelope header: %w", err)
	}
	if !hmac.Equal(header[:magicLen], magic[:]) {
		return fmt.Errorf("%w: bad magic in %s", ErrCorruptEnvelope, envelopePath)
	}
	iterations := binary.BigEndian.Uint32(header[magicLen : magicLen+4])
	if iterations == 0 || iterations > maxIterations {
		return fmt.Errorf("%w: implausible iteration count %d", ErrCorruptEnvelope, iterations)
	}
	salt := header[magicLen+4 : magicLen+4+saltLen]
	iv := header[magicLen+4+saltLen:]

	encKey, macKey := deriveKeys(passphrase, salt, int(iterations))

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return &CipherError{Op: "init cipher", Err: err}
	}
	dec := cipher.NewCBCDecrypter(block, iv)
	mac := hmac.New(sha256.New, macKey)
	mac.Write(header)

	tmp := outputPath + ".partial"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(tmp)

	if err := s.open(in, out, dec, mac, cipherLen); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}

	expected := make([]byte, macLen)
	if _, err := io.ReadFull(in, expected); err != nil {
		return fmt.Errorf("read mac: %w", err)
	}
	if !hmac.Equal(expected, mac.Sum(nil)) {
		return fmt.Errorf("open envelope %s: %w", envelopePath, ErrWrongPassphrase)
	}

	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("finalize output file: %w", err)
	}

	s.logger.Info().Str("envelope", envelopePath).Str("output", outputPath).Msg("envelope opened")
	return nil
}

func (s *Sealer) open(in io.Reader, out io.Writer, dec cipher.BlockMode, mac io.Writer, cipherLen int64) error {
	r := io.LimitReader(in, cipherLen)
	buf := make([]byte, 64*1024) // multiple of the block size
	var last []byte              // hold back one block for padding removal

	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := mac.Write(chunk); err != nil {
				return &CipherError{Op: "update mac", Err: err}
			}
			dec.CryptBlocks(chunk, chunk)
			if last != nil {
				if _, err := out.Write(last); err != nil {
					return fmt.Errorf("write plaintext: %w", err)
				}
			}
			last = append(last[:0], chunk[len(chunk)-aes.BlockSize:]...)
			if _, err := out.Write(chunk[:len(chunk)-aes.BlockSize]); err != nil {
				return fmt.Errorf("write plaintext: %w", err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read ciphertext: %w", rerr)
		}
	}

	pad := int(last[aes.BlockSize-1])
	if pad < 1 || pad > aes.BlockSize {
		return ErrWrongPassphrase
	}
	if _, err := out.Write(last[:aes.BlockSize-pad]); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}

// deriveKeys stretches the passphrase into independent cipher and MAC
// keys. Callers should let the passphrase go out of scope as soon as the
// operation completes; it is never persisted.
func deriveKeys(passphrase string, salt []byte, iterations int) (encKey, macKey []byte) {
	keys := pbkdf2.Key([]byte(passphrase), salt, iterations, 2*keyLen, sha256.New)
	return keys[:keyLen], keys[keyLen:]
}
