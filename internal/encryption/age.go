// Package encryption protects archives at rest with age's scrypt-based
// passphrase encryption. An encrypted archive is a regular age file whose
// plaintext is the zip container.
package encryption

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// ageHeader is the first line of every age version 1 file.
const ageHeader = "age-encryption.org/v1"

// IsEncrypted sniffs whether the file at path is an age-encrypted archive.
// A missing or unreadable file reports false; the caller will surface the
// real error when it opens the file for its actual purpose.
func IsEncrypted(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimRight(line, "\r\n") == ageHeader
}

// EncryptFile encrypts src into dst using the passphrase. A failed run
// leaves no partial output behind.
func EncryptFile(src, dst, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	return transformFile(src, dst, func(r io.Reader, w io.Writer) error {
		encWriter, err := age.Encrypt(w, recipient)
		if err != nil {
			return fmt.Errorf("creating encrypted writer: %w", err)
		}
		if _, err := io.Copy(encWriter, r); err != nil {
			return fmt.Errorf("encrypting data: %w", err)
		}
		if err := encWriter.Close(); err != nil {
			return fmt.Errorf("finalizing encryption: %w", err)
		}
		return nil
	})
}

// DecryptFile decrypts src into dst using the passphrase. A wrong
// passphrase fails before any plaintext is produced.
func DecryptFile(src, dst, passphrase string) error {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	return transformFile(src, dst, func(r io.Reader, w io.Writer) error {
		decReader, err := age.Decrypt(r, identity)
		if err != nil {
			return fmt.Errorf("decrypting archive: %w", err)
		}
		if _, err := io.Copy(w, decReader); err != nil {
			return fmt.Errorf("reading decrypted data: %w", err)
		}
		return nil
	})
}

// transformFile streams src through fn into dst, removing dst on failure.
func transformFile(src, dst string, fn func(io.Reader, io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(dst)
		}
	}()

	if err := fn(in, out); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}

	success = true
	return nil
}
