package authconfig

import (
	"context"
	"encoding/json"
	"maps"
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	cfg     Config
	updates []Config
	getErr  error
}

func (f *fakeAPI) Get(context.Context) (Config, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.cfg.Clone(), nil
}

func (f *fakeAPI) Update(_ context.Context, payload Config) (Config, error) {
	f.updates = append(f.updates, payload)
	maps.Copy(f.cfg, payload)
	return f.cfg.Clone(), nil
}

func serverConfig() Config {
	return Config{
		"EXTERNAL_EMAIL_ENABLED":    true,
		"MAILER_AUTOCONFIRM":        true,
		"MAILER_OTP_EXP":            json.Number("3600"),
		"EXTERNAL_GITHUB_ENABLED":   false,
		"EXTERNAL_GITHUB_CLIENT_ID": "abc",
		"EXTERNAL_GITHUB_SECRET":    nil,
		"SITE_URL":                  "http://localhost:3000",
	}
}

func TestUpdateProvider_SendsOnlyChangedKeys(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	res, err := svc.UpdateProvider(context.Background(), "github", Config{
		"EXTERNAL_GITHUB_ENABLED":   true,
		"EXTERNAL_GITHUB_CLIENT_ID": "abc",
		"EXTERNAL_GITHUB_SECRET":    "shh",
	})
	require.NoError(t, err)

	require.Len(t, api.updates, 1)
	assert.Equal(t, Config{"EXTERNAL_GITHUB_ENABLED": true, "EXTERNAL_GITHUB_SECRET": "shh"}, api.updates[0])
	assert.True(t, res.Changed)
	assert.Equal(t, "github", res.Provider)
	assert.True(t, res.Config.Bool("EXTERNAL_GITHUB_ENABLED"))
}

func TestUpdateProvider_NoChangesSkipsRequest(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	res, err := svc.UpdateProvider(context.Background(), "email", Config{"MAILER_OTP_EXP": 3600})
	require.NoError(t, err)
	assert.Empty(t, api.updates)
	assert.False(t, res.Changed)
	assert.Equal(t, "http://localhost:3000", res.Config["SITE_URL"])
}

func TestUpdateProvider_InvertsAutoconfirm(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	form, err := svc.Form(context.Background(), "email")
	require.NoError(t, err)
	assert.Equal(t, false, form["MAILER_AUTOCONFIRM"], "confirmation is off while autoconfirm is on")
	assert.NotContains(t, form, "SITE_URL")

	_, err = svc.UpdateProvider(context.Background(), "email", Config{"MAILER_AUTOCONFIRM": true})
	require.NoError(t, err)
	require.Len(t, api.updates, 1)
	assert.Equal(t, Config{"MAILER_AUTOCONFIRM": false}, api.updates[0])
}

func TestUpdateProvider_ClearsValues(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	_, err := svc.UpdateProvider(context.Background(), "github", Config{"EXTERNAL_GITHUB_CLIENT_ID": ""})
	require.NoError(t, err)
	require.Len(t, api.updates, 1)
	assert.Equal(t, Config{"EXTERNAL_GITHUB_CLIENT_ID": nil}, api.updates[0])
}

func TestUpdateProvider_ValidationBlocksRequest(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	_, err := svc.UpdateProvider(context.Background(), "github", Config{"EXTERNAL_GITHUB_ENABLED": true})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, errs.FieldErrors{"EXTERNAL_GITHUB_SECRET": "Client Secret is required"}, errs.FieldsOf(err))
	assert.Empty(t, api.updates)
}

func TestUpdateProvider_RejectsForeignKeys(t *testing.T) {
	api := &fakeAPI{cfg: serverConfig()}
	svc := NewService(api)

	_, err := svc.UpdateProvider(context.Background(), "github", Config{"SITE_URL": "https://evil.example"})
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, errs.FieldsOf(err), "SITE_URL")
	assert.Empty(t, api.updates)
}

func TestUpdateProvider_UnknownProvider(t *testing.T) {
	svc := NewService(&fakeAPI{cfg: serverConfig()})

	_, err := svc.UpdateProvider(context.Background(), "myspace", Config{})
	assert.True(t, errs.IsNotFound(err))
}

func TestUpdateProvider_FetchError(t *testing.T) {
	api := &fakeAPI{getErr: errs.New(errs.ErrKindPermissionDenied, "fetch auth config: Invalid token")}
	svc := NewService(api)

	_, err := svc.UpdateProvider(context.Background(), "github", Config{"EXTERNAL_GITHUB_ENABLED": false})
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Empty(t, api.updates)
}

func TestStatuses(t *testing.T) {
	svc := NewService(&fakeAPI{cfg: serverConfig()})

	statuses, err := svc.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, len(Providers()))

	enabled := map[string]bool{}
	for _, s := range statuses {
		enabled[s.ID] = s.Enabled
	}
	assert.True(t, enabled["email"])
	assert.False(t, enabled["github"])
}
