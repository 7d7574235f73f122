package authconfig

import (
	"slices"
	"strings"
)

// FieldType is how a setting is edited.
type FieldType string

const (
	FieldBoolean   FieldType = "boolean"
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldSelect    FieldType = "select"
	FieldMultiline FieldType = "multiline-string"
	FieldDateTime  FieldType = "datetime"
)

// Field is one setting of a provider.
type Field struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Type     FieldType `json:"type"`
	Secret   bool      `json:"isSecret,omitempty"`
	Optional bool      `json:"optional,omitempty"`
	Units    string    `json:"units,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// Provider describes an authentication provider and the keys it owns.
type Provider struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	EnabledKey string  `json:"enabledKey"`
	Fields     []Field `json:"fields"`

	validate  func(v *validator)
	normalize func(form Config)
}

// Keys returns the config keys owned by p in declaration order.
func (p Provider) Keys() []string {
	keys := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Owns reports whether key is one of p's settings.
func (p Provider) Owns(key string) bool {
	return slices.ContainsFunc(p.Fields, func(f Field) bool { return f.Key == key })
}

// Enabled reports whether cfg, in server form, turns p on.
func (p Provider) Enabled(cfg Config) bool {
	return cfg.Bool(p.EnabledKey)
}

// Subset returns the entries of cfg owned by p.
func (p Provider) Subset(cfg Config) Config {
	out := Config{}
	for _, key := range p.Keys() {
		if v, ok := cfg[key]; ok {
			out[key] = v
		}
	}
	return out
}

// Normalize applies the provider's input clean-up to form in place.
func (p Provider) Normalize(form Config) {
	if p.normalize != nil {
		p.normalize(form)
	}
}

// Validate checks form values for p. server supplies settings outside the
// provider that change its rules, such as HOOK_SEND_SMS_ENABLED. The result
// is a validation error keyed by config key, or nil.
func (p Provider) Validate(form, server Config) error {
	v := newValidator(form, server)
	for _, f := range p.Fields {
		if f.Type == FieldBoolean {
			v.boolean(f.Key)
		}
	}
	if p.validate != nil {
		p.validate(v)
	}
	return v.errs.Err()
}

// Providers returns the registry in display order.
func Providers() []Provider {
	return slices.Clone(registry)
}

// Lookup finds a provider by id, case-insensitively.
func Lookup(id string) (Provider, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range registry {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

var smsProviders = []string{"twilio", "messagebird", "textlocal", "vonage", "twilio_verify"}

var registry = []Provider{
	{
		ID:         "email",
		Title:      "Email",
		EnabledKey: "EXTERNAL_EMAIL_ENABLED",
		Fields: []Field{
			{Key: "EXTERNAL_EMAIL_ENABLED", Title: "Enable Email provider", Type: FieldBoolean},
			{Key: "MAILER_AUTOCONFIRM", Title: "Confirm email", Type: FieldBoolean},
			{Key: "MAILER_SECURE_EMAIL_CHANGE_ENABLED", Title: "Secure email change", Type: FieldBoolean},
			{Key: "SECURITY_UPDATE_PASSWORD_REQUIRE_REAUTHENTICATION", Title: "Secure password change", Type: FieldBoolean},
			{Key: "MAILER_OTP_EXP", Title: "Email OTP Expiration", Type: FieldNumber, Units: "seconds"},
			{Key: "MAILER_OTP_LENGTH", Title: "Email OTP Length", Type: FieldNumber, Units: "number"},
		},
		validate: validateEmail,
	},
	{
		ID:         "phone",
		Title:      "Phone",
		EnabledKey: "EXTERNAL_PHONE_ENABLED",
		Fields: []Field{
			{Key: "EXTERNAL_PHONE_ENABLED", Title: "Enable Phone provider", Type: FieldBoolean},
			{Key: "SMS_PROVIDER", Title: "SMS provider", Type: FieldSelect, Options: smsProviders},
			{Key: "SMS_TWILIO_ACCOUNT_SID", Title: "Twilio Account SID", Type: FieldString},
			{Key: "SMS_TWILIO_AUTH_TOKEN", Title: "Twilio Auth Token", Type: FieldString, Secret: true},
			{Key: "SMS_TWILIO_MESSAGE_SERVICE_SID", Title: "Twilio Message Service SID", Type: FieldString},
			{Key: "SMS_TWILIO_CONTENT_SID", Title: "Twilio Content SID", Type: FieldString, Optional: true},
			{Key: "SMS_TWILIO_VERIFY_ACCOUNT_SID", Title: "Twilio Account SID", Type: FieldString},
			{Key: "SMS_TWILIO_VERIFY_AUTH_TOKEN", Title: "Twilio Auth Token", Type: FieldString, Secret: true},
			{Key: "SMS_TWILIO_VERIFY_MESSAGE_SERVICE_SID", Title: "Twilio Verify Service SID", Type: FieldString},
			{Key: "SMS_MESSAGEBIRD_ACCESS_KEY", Title: "Messagebird Access Key", Type: FieldString},
			{Key: "SMS_MESSAGEBIRD_ORIGINATOR", Title: "Messagebird Originator", Type: FieldString},
			{Key: "SMS_TEXTLOCAL_API_KEY", Title: "Textlocal API Key", Type: FieldString},
			{Key: "SMS_TEXTLOCAL_SENDER", Title: "Textlocal Sender", Type: FieldString},
			{Key: "SMS_VONAGE_API_KEY", Title: "Vonage API Key", Type: FieldString},
			{Key: "SMS_VONAGE_API_SECRET", Title: "Vonage API Secret", Type: FieldString},
			{Key: "SMS_VONAGE_FROM", Title: "Vonage From", Type: FieldString},
			{Key: "SMS_AUTOCONFIRM", Title: "Enable phone confirmations", Type: FieldBoolean},
			{Key: "SMS_OTP_EXP", Title: "SMS OTP Expiry", Type: FieldNumber, Units: "seconds"},
			{Key: "SMS_OTP_LENGTH", Title: "SMS OTP Length", Type: FieldNumber, Units: "digits"},
			{Key: "SMS_TEMPLATE", Title: "SMS Message", Type: FieldMultiline},
			{Key: "SMS_TEST_OTP", Title: "Test Phone Numbers and OTPs", Type: FieldString, Optional: true},
			{Key: "SMS_TEST_OTP_VALID_UNTIL", Title: "Test OTPs Valid Until", Type: FieldDateTime},
		},
		validate:  validatePhone,
		normalize: normalizePhone,
	},
	{
		ID:         "saml",
		Title:      "SAML 2.0",
		EnabledKey: "SAML_ENABLED",
		Fields: []Field{
			{Key: "SAML_ENABLED", Title: "Enable SAML 2.0 Single Sign-on", Type: FieldBoolean},
			{Key: "SAML_EXTERNAL_URL", Title: "SAML metadata URL", Type: FieldString, Optional: true},
			{Key: "SAML_ALLOW_ENCRYPTED_ASSERTIONS", Title: "Allow encrypted SAML Assertions", Type: FieldBoolean, Optional: true},
		},
		validate: func(v *validator) { v.url("SAML_EXTERNAL_URL") },
	},
	{
		ID:         "apple",
		Title:      "Apple",
		EnabledKey: "EXTERNAL_APPLE_ENABLED",
		Fields: []Field{
			{Key: "EXTERNAL_APPLE_ENABLED", Title: "Enable Sign in with Apple", Type: FieldBoolean},
			{Key: "EXTERNAL_APPLE_CLIENT_ID", Title: "Service ID (for OAuth)", Type: FieldString},
			{Key: "EXTERNAL_APPLE_SECRET", Title: "Secret Key (for OAuth)", Type: FieldString, Secret: true},
			{Key: "EXTERNAL_APPLE_ADDITIONAL_CLIENT_IDS", Title: "Authorized Client IDs", Type: FieldString},
		},
		validate: validateApple,
	},
	oauth("azure", "Azure", "AZURE", urlOptional),
	oauth("bitbucket", "Bitbucket", "BITBUCKET", urlNone),
	oauth("discord", "Discord", "DISCORD", urlNone),
	oauth("facebook", "Facebook", "FACEBOOK", urlNone),
	oauth("figma", "Figma", "FIGMA", urlNone),
	oauth("github", "GitHub", "GITHUB", urlNone),
	oauth("gitlab", "GitLab", "GITLAB", urlOptional),
	{
		ID:         "google",
		Title:      "Google",
		EnabledKey: "EXTERNAL_GOOGLE_ENABLED",
		Fields: []Field{
			{Key: "EXTERNAL_GOOGLE_ENABLED", Title: "Enable Sign in with Google", Type: FieldBoolean},
			{Key: "EXTERNAL_GOOGLE_CLIENT_ID", Title: "Client ID (for OAuth)", Type: FieldString},
			{Key: "EXTERNAL_GOOGLE_SECRET", Title: "Client Secret (for OAuth)", Type: FieldString, Secret: true},
			{Key: "EXTERNAL_GOOGLE_ADDITIONAL_CLIENT_IDS", Title: "Authorized Client IDs", Type: FieldString},
			{Key: "EXTERNAL_GOOGLE_SKIP_NONCE_CHECK", Title: "Skip nonce checks", Type: FieldBoolean},
		},
		validate: validateGoogle,
	},
	oauth("kakao", "Kakao", "KAKAO", urlNone),
	oauth("keycloak", "Keycloak", "KEYCLOAK", urlRequired),
	oauth("linkedin_oidc", "LinkedIn (OIDC)", "LINKEDIN_OIDC", urlNone),
	oauth("notion", "Notion", "NOTION", urlNone),
	oauth("twitch", "Twitch", "TWITCH", urlNone),
	oauth("twitter", "Twitter", "TWITTER", urlNone),
	oauth("slack_oidc", "Slack (OIDC)", "SLACK_OIDC", urlNone),
	oauth("slack", "Slack (Deprecated)", "SLACK", urlNone),
	oauth("spotify", "Spotify", "SPOTIFY", urlNone),
	oauth("workos", "WorkOS", "WORKOS", urlRequired),
	oauth("zoom", "Zoom", "ZOOM", urlNone),
}

type urlRule int

const (
	urlNone urlRule = iota
	urlOptional
	urlRequired
)

// oauth builds a client-id/secret provider under the EXTERNAL_<name>_ prefix.
func oauth(id, title, name string, rule urlRule) Provider {
	prefix := "EXTERNAL_" + name + "_"
	p := Provider{
		ID:         id,
		Title:      title,
		EnabledKey: prefix + "ENABLED",
		Fields: []Field{
			{Key: prefix + "ENABLED", Title: title + " enabled", Type: FieldBoolean},
			{Key: prefix + "CLIENT_ID", Title: "Client ID", Type: FieldString},
			{Key: prefix + "SECRET", Title: "Client Secret", Type: FieldString, Secret: true},
		},
	}
	if rule != urlNone {
		p.Fields = append(p.Fields, Field{Key: prefix + "URL", Title: title + " URL", Type: FieldString, Optional: rule == urlOptional})
	}

	p.validate = func(v *validator) {
		if v.enabled(prefix + "ENABLED") {
			v.required(prefix+"CLIENT_ID", "Client ID is required")
			v.required(prefix+"SECRET", "Client Secret is required")
			if rule == urlRequired {
				v.required(prefix+"URL", title+" URL is required")
			}
		}
		if rule != urlNone {
			v.url(prefix + "URL")
		}
	}
	return p
}
