package cipher

// #region imports
import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// #endregion

// #region wrap-method

// WrapMethod names how a device's copy of the master key is protected.
type WrapMethod string

const (
	// WrapDevice derives the wrap key from a device-held secret
	// (secure-element / TPM-style binding).
	WrapDevice WrapMethod = "device_secret"
	// WrapPassphrase derives the wrap key from an operator passphrase.
	// Fallback for devices without a hardware secret.
	WrapPassphrase WrapMethod = "passphrase"
)

// wrapLabel domain-separates the HKDF expansion.
const wrapLabel = "restraint/log-key-wrap/v1"

// #endregion wrap-method

// #region derive

// DeriveDeviceWrapKey expands a device secret into a wrap key via HKDF.
func DeriveDeviceWrapKey(deviceSecret, salt []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, deviceSecret, salt, []byte(wrapLabel))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// DerivePassphraseWrapKey stretches a passphrase into a wrap key with
// Argon2id. Parameters follow the library's current recommendations.
func DerivePassphraseWrapKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
}

// #endregion derive

// #region wrap-unwrap

// WrapKey seals the master key under a wrap key, binding the device id so a
// wrapped blob cannot be replayed into another device's registry row.
func WrapKey(wrapKey, masterKey []byte, deviceID string) ([]byte, error) {
	blob, err := Seal(wrapKey, masterKey, []byte(deviceID))
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	return blob, nil
}

// UnwrapKey opens a wrapped master key for the given device.
func UnwrapKey(wrapKey, wrapped []byte, deviceID string) ([]byte, error) {
	key, err := Open(wrapKey, wrapped, []byte(deviceID))
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return key, nil
}

// #endregion wrap-unwrap
