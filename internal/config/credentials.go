package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/trungkh/alexa-emulator/internal/credential"
)

const (
	section         = "alexa"
	keyClientID     = "client_id"
	keyClientSecret = "client_secret"
	keyRefreshToken = "refresh_token"
	keyAccessToken  = "access_token"
	keyCreatedTime  = "created_time"
	keyExpiredIn    = "expired_in"
)

// LoadCredentials reads the persisted "alexa" section from path into a
// credential.Record.
func LoadCredentials(path string) (*credential.Record, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	sec := f.Section(section)
	rec := &credential.Record{
		ClientID:     sec.Key(keyClientID).String(),
		ClientSecret: sec.Key(keyClientSecret).String(),
		RefreshToken: sec.Key(keyRefreshToken).String(),
		AccessToken:  sec.Key(keyAccessToken).String(),
		CreatedAt:    sec.Key(keyCreatedTime).MustInt64(0),
		ExpiresIn:    sec.Key(keyExpiredIn).MustInt64(0),
	}
	return rec, nil
}

// SaveCredentials rewrites the "alexa" section of path with rec, preserving
// any other sections already present in the file. Called by the dialog
// orchestrator after every successful refresh.
func SaveCredentials(path string, rec *credential.Record) error {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	sec := f.Section(section)
	sec.Key(keyClientID).SetValue(rec.ClientID)
	sec.Key(keyClientSecret).SetValue(rec.ClientSecret)
	sec.Key(keyRefreshToken).SetValue(rec.RefreshToken)
	sec.Key(keyAccessToken).SetValue(rec.AccessToken)
	sec.Key(keyCreatedTime).SetValue(fmt.Sprintf("%d", rec.CreatedAt))
	sec.Key(keyExpiredIn).SetValue(fmt.Sprintf("%d", rec.ExpiresIn))
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("config: saving %s: %w", path, err)
	}
	return nil
}
