package mfa

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	ChannelTOTP = "totp"

	EncodingBase64 = "base64"
	EncodingPNG    = "png"

	// secretSize is the generated secret length in bytes (160 bits).
	secretSize = 20
	// minSecretBytes is the enrollment policy floor (128 bits).
	minSecretBytes = 16

	DefaultIssuer = "DruvStar"
	DefaultQRSize = 200
)

// Enrollment is handed to the user once, when MFA is set up.
type Enrollment struct {
	Issuer      string
	AccountName string
	Secret      string
	Digits      int
	Period      int
	URL         string
	QRCode      []byte
	Encoding    string
}

// QRCodeDataURL renders the QR code as an inline PNG data URL.
func (e Enrollment) QRCodeDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(e.QRCode)
}

// Enroller creates shared secrets and their QR codes.
type Enroller struct {
	issuer   string
	qrSize   int
	settings Settings
}

func NewEnroller(issuer string, qrSize int, settings Settings) (*Enroller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if qrSize <= 0 {
		qrSize = DefaultQRSize
	}
	return &Enroller{issuer: issuer, qrSize: qrSize, settings: settings}, nil
}

// Enroll generates a fresh secret for accountName. Empty channel and encoding select
// the TOTP channel and base64 encoding.
func (en *Enroller) Enroll(accountName, channel, encoding string) (Enrollment, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		channel = ChannelTOTP
	}
	if channel != ChannelTOTP {
		return Enrollment{}, newError(CodeUnsupportedChannel, fmt.Errorf("channel %q", channel))
	}
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" {
		encoding = EncodingBase64
	}
	if encoding != EncodingBase64 && encoding != EncodingPNG {
		return Enrollment{}, newError(CodeUnsupportedEncoding, fmt.Errorf("encoding %q", encoding))
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      en.issuer,
		AccountName: accountName,
		Period:      uint(en.settings.Period),
		SecretSize:  secretSize,
		Digits:      otp.Digits(en.settings.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, newError(CodeFailedToGenerateOTP, err)
	}
	if err := ValidateSecretStrength(key.Secret()); err != nil {
		return Enrollment{}, newError(CodeFailedToGenerateOTP, err)
	}

	img, err := key.Image(en.qrSize, en.qrSize)
	if err != nil {
		return Enrollment{}, newError(CodeFailedToGenerateQRCode, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Enrollment{}, newError(CodeFailedToGenerateQRCode, err)
	}

	return Enrollment{
		Issuer:      en.issuer,
		AccountName: accountName,
		Secret:      key.Secret(),
		Digits:      en.settings.Digits,
		Period:      en.settings.Period,
		URL:         key.URL(),
		QRCode:      buf.Bytes(),
		Encoding:    encoding,
	}, nil
}

// ValidateSecretStrength rejects secrets that are not base32 or shorter than 128 bits.
func ValidateSecretStrength(secret string) error {
	raw, err := decodeSecret(secret)
	if err != nil {
		return err
	}
	if len(raw) < minSecretBytes {
		return fmt.Errorf("secret has %d bits, need at least %d", len(raw)*8, minSecretBytes*8)
	}
	return nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if secret == "" {
		return nil, errors.New("secret is empty")
	}
	if n := len(secret) % 8; n != 0 {
		secret += strings.Repeat("=", 8-n)
	}
	raw, err := base32.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("secret is not base32: %w", err)
	}
	return raw, nil
}
