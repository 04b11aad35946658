package webapi

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// Binary data crosses the Go/JS boundary as lowercase hex strings.
const encodingJS = `
(function() {
	var g = globalThis;
	var digits = '0123456789abcdef';

	g.__bytesToHex = function(bytes) {
		var out = '';
		for (var i = 0; i < bytes.length; i++) out += digits[bytes[i] >> 4] + digits[bytes[i] & 15];
		return out;
	};
	g.__hexToBytes = function(hex) {
		var out = new Uint8Array(hex.length >> 1);
		for (var i = 0; i < out.length; i++) out[i] = parseInt(hex.substr(i * 2, 2), 16);
		return out;
	};
	g.__bufferSource = function(data) {
		if (data instanceof ArrayBuffer) return new Uint8Array(data);
		if (ArrayBuffer.isView(data)) return new Uint8Array(data.buffer, data.byteOffset, data.byteLength);
		throw new TypeError('argument is not an ArrayBuffer or ArrayBufferView');
	};

	function invalid(fn) {
		return function(s) {
			if (arguments.length === 0) throw new TypeError(fn.name + ': 1 argument required, but only 0 present.');
			try {
				return fn(String(s));
			} catch (err) {
				throw new DOMException(err.message, 'InvalidCharacterError');
			}
		};
	}
	g.btoa = invalid(function btoa(s) { return __base64_encode(s); });
	g.atob = invalid(function atob(s) { return __base64_decode(s); });

	function TextEncoder() {}
	Object.defineProperty(TextEncoder.prototype, 'encoding', { get: function() { return 'utf-8'; } });
	TextEncoder.prototype.encode = function(input) {
		return g.__hexToBytes(__utf8_encode(input === undefined ? '' : String(input)));
	};
	TextEncoder.prototype.encodeInto = function(input, dest) {
		var bytes = this.encode(input);
		var written = 0, read = 0;
		var s = String(input);
		for (var i = 0; i < s.length; i++) {
			var cp = s.codePointAt(i);
			var n = cp < 0x80 ? 1 : cp < 0x800 ? 2 : cp < 0x10000 ? 3 : 4;
			if (written + n > dest.length) break;
			for (var j = 0; j < n; j++) dest[written + j] = bytes[written + j];
			written += n;
			read += cp > 0xffff ? 2 : 1;
			if (cp > 0xffff) i++;
		}
		return { read: read, written: written };
	};

	function TextDecoder(label, options) {
		label = label === undefined ? 'utf-8' : String(label).trim().toLowerCase();
		if (label !== 'utf-8' && label !== 'utf8' && label !== 'unicode-1-1-utf-8') {
			throw new RangeError('TextDecoder: unsupported encoding ' + label);
		}
		this.fatal = !!(options && options.fatal);
		this.ignoreBOM = !!(options && options.ignoreBOM);
	}
	Object.defineProperty(TextDecoder.prototype, 'encoding', { get: function() { return 'utf-8'; } });
	TextDecoder.prototype.decode = function(input) {
		if (input === undefined) return '';
		var text = __utf8_decode(g.__bytesToHex(g.__bufferSource(input)), this.fatal);
		if (text === null) throw new TypeError('TextDecoder: the encoded data was not valid');
		if (!this.ignoreBOM && text.charCodeAt(0) === 0xfeff) text = text.slice(1);
		return text;
	};

	g.TextEncoder = TextEncoder;
	g.TextDecoder = TextDecoder;
})();
`

// SetupEncoding installs atob, btoa, TextEncoder and TextDecoder along with
// the hex helpers other setups use to move bytes across the boundary.
func SetupEncoding(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__base64_encode", func(s string) (string, error) {
		b, err := latin1(s)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__base64_decode", func(s string) (string, error) {
		b, err := decodeForgivingBase64(s)
		if err != nil {
			return "", err
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes), nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__utf8_encode", func(s string) string {
		return hex.EncodeToString([]byte(strings.ToValidUTF8(s, "�")))
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__utf8_decode", func(hexData string, fatal bool) (string, error) {
		b, err := hex.DecodeString(hexData)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		if !utf8.Valid(b) {
			if fatal {
				return "null", nil
			}
			b = []byte(strings.ToValidUTF8(string(b), "�"))
		}
		return jsString(string(b)), nil
	}); err != nil {
		return err
	}
	if err := rt.Eval(encodingJS); err != nil {
		return fmt.Errorf("evaluating encoding.js: %w", err)
	}
	// __utf8_decode answers with a JSON literal so fatal failures can be null.
	return rt.Eval(`(function() {
		var decode = __utf8_decode;
		globalThis.__utf8_decode = function(hex, fatal) { return JSON.parse(decode(hex, !!fatal)); };
	})();`)
}

// latin1 maps each code point of s to one byte, as btoa requires.
func latin1(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("the string to be encoded contains characters outside of the Latin1 range")
		}
		out = append(out, byte(r))
	}
	return out, nil
}

// decodeForgivingBase64 decodes the way atob does: ASCII whitespace is
// ignored and padding is optional.
func decodeForgivingBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	if len(s)%4 == 0 {
		s = strings.TrimSuffix(strings.TrimSuffix(s, "="), "=")
	}
	if len(s)%4 == 1 {
		return nil, fmt.Errorf("the string to be decoded is not correctly encoded")
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("the string to be decoded is not correctly encoded")
	}
	return b, nil
}
