package authconfig

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustreak/tablekit/internal/errs"
)

const (
	msgRequired = "This is required"

	appleAudience     = "https://appleid.apple.com"
	appleSecretMinTTL = 7 * 24 * time.Hour
)

var (
	testOTPPattern = regexp.MustCompile(`^\s*([0-9]{1,15}=[0-9]+)(\s*,\s*[0-9]{1,15}=[0-9]+)*\s*$`)
	whitespace     = regexp.MustCompile(`\s+`)

	jwtShape = regexp.MustCompile(`(?i)^[a-z0-9_-]+([.][a-z0-9_-]+){2}$`)

	appleClientID      = regexp.MustCompile(`(?i)^[a-z0-9.-]+$`)
	appleAdditionalIDs = regexp.MustCompile(`(?i)^([.a-z0-9-]+(,\s*[.a-z0-9-]+)*,*\s*)?$`)

	googleClientID      = regexp.MustCompile(`(?i)^([a-z0-9-]+([.][a-z0-9-]+)+)?$`)
	googleSecret        = regexp.MustCompile(`(?i)^[a-z0-9./_-]*$`)
	googleAdditionalIDs = regexp.MustCompile(`(?i)^([a-z0-9-]+([.][a-z0-9-]+)*(,\s*[a-z0-9-]+([.][a-z0-9-]+)*)*,*\s*)?$`)
)

// now is swapped in tests that need a fixed clock.
var now = time.Now

// validator accumulates field errors for one form.
type validator struct {
	form   Config
	server Config
	errs   errs.FieldErrors
}

func newValidator(form, server Config) *validator {
	return &validator{form: form, server: server, errs: errs.FieldErrors{}}
}

func (v *validator) str(key string) string {
	return strings.TrimSpace(v.form.String(key))
}

func (v *validator) enabled(key string) bool {
	return v.form.Bool(key)
}

// setting reads a key from the form, falling back to the server config.
func (v *validator) setting(key string) bool {
	if _, ok := v.form[key]; ok {
		return v.form.Bool(key)
	}
	return v.server.Bool(key)
}

func (v *validator) required(key, msg string) bool {
	if v.str(key) == "" {
		v.errs.Add(key, msg)
		return false
	}
	return true
}

func (v *validator) match(key string, re *regexp.Regexp, msg string) {
	if s := v.str(key); s != "" && !re.MatchString(s) {
		v.errs.Add(key, msg)
	}
}

func (v *validator) boolean(key string) {
	switch val := v.form[key].(type) {
	case nil, bool:
	case string:
		if val != "true" && val != "false" {
			v.errs.Add(key, "Must be true or false")
		}
	default:
		v.errs.Add(key, "Must be true or false")
	}
}

// number checks key against [lo, hi]; hi < lo disables the upper bound.
func (v *validator) number(key string, required bool, lo, hi float64, loMsg, hiMsg string) {
	n, present, ok := v.form.Number(key)
	switch {
	case !present:
		if required {
			v.errs.Add(key, msgRequired)
		}
	case !ok:
		v.errs.Add(key, "Must be a number")
	case n < lo:
		v.errs.Add(key, loMsg)
	case hi >= lo && n > hi:
		v.errs.Add(key, hiMsg)
	}
}

func (v *validator) url(key string) {
	s := v.str(key)
	if s == "" {
		return
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.errs.Add(key, "Must be a valid URL")
	}
}

func validateEmail(v *validator) {
	v.number("MAILER_OTP_EXP", true, 0, 86400, "Must be more than 0", "Must be no more than 86400")
	v.number("MAILER_OTP_LENGTH", false, 6, 10, "Must be at least 6", "Must be no more than 10")
}

// smsRequired lists the keys each SMS provider needs, with their messages.
var smsRequired = map[string][][2]string{
	"twilio": {
		{"SMS_TWILIO_ACCOUNT_SID", "Twilio Account SID is required"},
		{"SMS_TWILIO_AUTH_TOKEN", "Twilio Auth Token is required"},
		{"SMS_TWILIO_MESSAGE_SERVICE_SID", "Twilio Message Service SID is required"},
	},
	"twilio_verify": {
		{"SMS_TWILIO_VERIFY_ACCOUNT_SID", "Twilio Verify Account SID is required"},
		{"SMS_TWILIO_VERIFY_AUTH_TOKEN", "Twilio Verify Auth Token is required"},
		{"SMS_TWILIO_VERIFY_MESSAGE_SERVICE_SID", "Twilio Verify Service SID is required"},
	},
	"messagebird": {
		{"SMS_MESSAGEBIRD_ACCESS_KEY", "Messagebird Access Key is required"},
		{"SMS_MESSAGEBIRD_ORIGINATOR", "Messagebird Originator is required"},
	},
	"textlocal": {
		{"SMS_TEXTLOCAL_API_KEY", "Textlocal API Key is required"},
		{"SMS_TEXTLOCAL_SENDER", "Textlocal Sender is required"},
	},
	"vonage": {
		{"SMS_VONAGE_API_KEY", "Vonage API Key is required"},
		{"SMS_VONAGE_API_SECRET", "Vonage API Secret is required"},
		{"SMS_VONAGE_FROM", "Vonage From is required"},
	},
}

func validatePhone(v *validator) {
	provider := v.str("SMS_PROVIDER")
	if provider != "" && !slices.Contains(smsProviders, provider) {
		v.errs.Add("SMS_PROVIDER", "Unknown SMS provider")
	}

	// A send-SMS hook replaces the provider credentials.
	if v.enabled("EXTERNAL_PHONE_ENABLED") && !v.setting("HOOK_SEND_SMS_ENABLED") {
		for _, req := range smsRequired[provider] {
			v.required(req[0], req[1])
		}
	}

	v.number("SMS_OTP_EXP", true, 0, -1, "Must be more than 0", "")
	v.number("SMS_OTP_LENGTH", true, 6, -1, "Must be 6 or more in length", "")
	v.required("SMS_TEMPLATE", "SMS template is required.")

	if v.str("SMS_TEST_OTP") != "" {
		v.match("SMS_TEST_OTP", testOTPPattern,
			"Must be a comma-separated list of <phone number>=<OTP> pairs. Phone numbers should be in international format, without spaces, dashes or the + prefix. Example: 123456789=987654")
		v.required("SMS_TEST_OTP_VALID_UNTIL", "You must provide a valid until date.")
	}
}

// normalizePhone drops whitespace from test OTPs and clears their expiry
// when none are set.
func normalizePhone(form Config) {
	raw, ok := form["SMS_TEST_OTP"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		if _, has := form["SMS_TEST_OTP_VALID_UNTIL"]; has {
			form["SMS_TEST_OTP_VALID_UNTIL"] = ""
		}
		return
	}
	form["SMS_TEST_OTP"] = whitespace.ReplaceAllString(raw, "")
}

func validateApple(v *validator) {
	const (
		enabledKey    = "EXTERNAL_APPLE_ENABLED"
		clientIDKey   = "EXTERNAL_APPLE_CLIENT_ID"
		secretKey     = "EXTERNAL_APPLE_SECRET"
		additionalKey = "EXTERNAL_APPLE_ADDITIONAL_CLIENT_IDS"
	)
	enabled := v.enabled(enabledKey)
	clientID := v.str(clientIDKey)

	v.match(clientIDKey, appleClientID,
		"Invalid characters. Apple recommends a reverse-domain name style string (e.g. com.example.app).")
	v.match(additionalKey, appleAdditionalIDs,
		"Invalid characters. Apple recommends a reverse-domain name style string (e.g. com.example.app). You must only use explicit bundle IDs, asterisks (*) are not allowed.")

	switch {
	case enabled && clientID != "":
		if v.required(secretKey, "Secret key is required when using the OAuth flow.") {
			if msg := checkAppleSecret(v.str(secretKey)); msg != "" {
				v.errs.Add(secretKey, msg)
			}
		}
	case enabled:
		v.required(additionalKey, "At least one Authorized Client ID is required when not using the OAuth flow.")
		if v.str(additionalKey) != "" && v.str(secretKey) != "" {
			v.errs.Add(secretKey, "Secret Key should only be set if Service ID for OAuth is provided.")
		}
	}
}

// checkAppleSecret inspects the client secret JWT without verifying its
// signature and returns a problem description, or "".
func checkAppleSecret(secret string) string {
	if !jwtShape.MatchString(secret) {
		return "Secret key should be a JWT."
	}

	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(secret, claims)
	if err != nil {
		return "Secret key is not a correctly generated JWT."
	}
	if alg, _ := token.Header["alg"].(string); alg != jwt.SigningMethodES256.Alg() {
		return "Secret key is not a correctly generated JWT."
	}
	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains(aud, appleAudience) {
		return "Secret key is not a correctly generated JWT."
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "Secret key is not a correctly generated JWT."
	}
	if exp != nil && exp.Time.Before(now().Add(appleSecretMinTTL)) {
		return "Secret key expires in less than 7 days!"
	}
	return ""
}

func validateGoogle(v *validator) {
	const (
		enabledKey    = "EXTERNAL_GOOGLE_ENABLED"
		clientIDKey   = "EXTERNAL_GOOGLE_CLIENT_ID"
		secretKey     = "EXTERNAL_GOOGLE_SECRET"
		additionalKey = "EXTERNAL_GOOGLE_ADDITIONAL_CLIENT_IDS"
	)
	enabled := v.enabled(enabledKey)
	clientID := v.str(clientIDKey)

	v.match(clientIDKey, googleClientID,
		"Invalid characters. Google OAuth Client IDs are usually a domain-name (e.g. 01234567890-abcdefghijklmnopqrstuvwxyz012345.apps.googleusercontent.com).")
	v.match(additionalKey, googleAdditionalIDs,
		"Invalid characters. Google Client IDs are usually a domain-name style string (e.g. com.example.com.app or *.apps.googleusercontent.com).")

	switch {
	case enabled && clientID != "":
		v.match(secretKey, googleSecret,
			"Invalid characters. Google OAuth Client Secrets usually contain letters, numbers, dots, dashes and underscores.")
		v.required(secretKey, "Client Secret is required when using the OAuth flow.")
	case enabled:
		v.required(additionalKey, "At least one Authorized Client ID is required when not using the OAuth flow.")
		if v.str(additionalKey) != "" && v.str(secretKey) != "" {
			v.errs.Add(secretKey, "Client Secret should only be set when Client ID for OAuth is set.")
		}
	}
}
