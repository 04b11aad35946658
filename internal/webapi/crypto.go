package webapi

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/google/uuid"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// maxRandomBytes is the getRandomValues quota.
const maxRandomBytes = 65536

// cryptoJS defines crypto.getRandomValues, crypto.randomUUID and
// crypto.subtle.digest. It expects SetupEncoding to have run.
const cryptoJS = `
(function() {
	var g = globalThis;
	var integer = [Int8Array, Uint8Array, Uint8ClampedArray, Int16Array, Uint16Array, Int32Array, Uint32Array];
	if (typeof BigInt64Array !== 'undefined') integer.push(BigInt64Array, BigUint64Array);

	var crypto = {};
	crypto.getRandomValues = function(array) {
		if (!integer.some(function(T) { return array instanceof T; })) {
			throw new DOMException('getRandomValues: argument is not an integer-type TypedArray', 'TypeMismatchError');
		}
		if (array.byteLength > 65536) {
			throw new DOMException('getRandomValues: ArrayBufferView byte length exceeds 65536', 'QuotaExceededError');
		}
		var bytes = g.__hexToBytes(__crypto_random(array.byteLength));
		new Uint8Array(array.buffer, array.byteOffset, array.byteLength).set(bytes);
		return array;
	};
	crypto.randomUUID = function() { return __crypto_uuid(); };

	var subtle = {};
	subtle.digest = function(algorithm, data) {
		return new Promise(function(resolve) {
			var name = typeof algorithm === 'string' ? algorithm : algorithm && algorithm.name;
			var hex = __crypto_digest(String(name), g.__bytesToHex(g.__bufferSource(data)));
			resolve(g.__hexToBytes(hex).buffer);
		});
	};
	crypto.subtle = subtle;

	g.crypto = crypto;
})();
`

// SetupCrypto installs the page's crypto object.
func SetupCrypto(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__crypto_random", func(n int) (string, error) {
		if n < 0 || n > maxRandomBytes {
			return "", fmt.Errorf("%w: %d random bytes", ErrInvalidArg, n)
		}
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__crypto_uuid", func() string {
		return uuid.NewString()
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__crypto_digest", func(algorithm, hexData string) (string, error) {
		h := digestHash(algorithm)
		if h == nil {
			return "", fmt.Errorf("%w: unrecognized digest algorithm %q", ErrInvalidArg, algorithm)
		}
		data, err := hex.DecodeString(hexData)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		h.Write(data)
		return hex.EncodeToString(h.Sum(nil)), nil
	}); err != nil {
		return err
	}
	if err := rt.Eval(cryptoJS); err != nil {
		return fmt.Errorf("evaluating crypto.js: %w", err)
	}
	return nil
}

// digestHash returns a hash for a WebCrypto digest algorithm name, or nil.
func digestHash(algorithm string) hash.Hash {
	switch strings.ToUpper(algorithm) {
	case "SHA-1":
		return sha1.New()
	case "SHA-256":
		return sha256.New()
	case "SHA-384":
		return sha512.New384()
	case "SHA-512":
		return sha512.New()
	}
	return nil
}
