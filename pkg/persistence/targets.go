package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/deploy"
)

// targetSecrets is the sealed part of a target.
type targetSecrets struct {
	SSHPassword    string `json:"ssh_password,omitempty"`
	SSHPrivateKey  []byte `json:"ssh_private_key,omitempty"`
	SSHPassphrase  string `json:"ssh_passphrase,omitempty"`
	APIAppPassword string `json:"api_app_password,omitempty"`
	APIToken       string `json:"api_token,omitempty"`
}

func (t targetSecrets) empty() bool {
	return t.SSHPassword == "" && len(t.SSHPrivateKey) == 0 && t.SSHPassphrase == "" &&
		t.APIAppPassword == "" && t.APIToken == ""
}

// SaveTarget stores the deployment target of an existing site. Credentials are sealed with the
// repository passphrase and never stored in clear.
func (s *Store) SaveTarget(ctx context.Context, siteID string, t deploy.Target) error {
	secrets := targetSecrets{
		SSHPassword:    t.SSH.Password,
		SSHPrivateKey:  t.SSH.PrivateKey,
		SSHPassphrase:  t.SSH.Passphrase,
		APIAppPassword: t.API.AppPassword,
		APIToken:       t.API.Token,
	}

	var blob []byte
	if !secrets.empty() {
		if s.passphrase == "" {
			return ErrNoPassphrase
		}
		plaintext, err := json.Marshal(secrets)
		if err != nil {
			return fmt.Errorf("failed to encode target secrets: %w", err)
		}
		blob, err = config.Seal(s.passphrase, plaintext)
		if err != nil {
			return fmt.Errorf("failed to seal target secrets: %w", err)
		}
	}

	insecure := 0
	if t.SSH.InsecureHostKey {
		insecure = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (site_id, url, ssh_host, ssh_port, ssh_user, working_directory,
			known_hosts_file, insecure_host_key, api_user, secret_blob, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			url = excluded.url,
			ssh_host = excluded.ssh_host,
			ssh_port = excluded.ssh_port,
			ssh_user = excluded.ssh_user,
			working_directory = excluded.working_directory,
			known_hosts_file = excluded.known_hosts_file,
			insecure_host_key = excluded.insecure_host_key,
			api_user = excluded.api_user,
			secret_blob = excluded.secret_blob,
			updated_at = excluded.updated_at
	`, siteID, t.URL, t.SSH.Host, t.SSH.Port, t.SSH.Username, t.SSH.WorkingDirectory,
		t.SSH.KnownHostsFile, insecure, t.API.Username, blob, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to store target of site %s: %w", siteID, err)
	}
	return nil
}

// LoadTarget returns the stored target of a site with its credentials unsealed.
func (s *Store) LoadTarget(ctx context.Context, siteID string) (deploy.Target, error) {
	var (
		t        deploy.Target
		insecure int
		blob     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT url, ssh_host, ssh_port, ssh_user, working_directory, known_hosts_file,
			insecure_host_key, api_user, secret_blob
		FROM targets WHERE site_id = ?
	`, siteID).Scan(&t.URL, &t.SSH.Host, &t.SSH.Port, &t.SSH.Username, &t.SSH.WorkingDirectory,
		&t.SSH.KnownHostsFile, &insecure, &t.API.Username, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return deploy.Target{}, fmt.Errorf("%w: target of site %s", ErrNotFound, siteID)
	}
	if err != nil {
		return deploy.Target{}, fmt.Errorf("failed to query target of site %s: %w", siteID, err)
	}
	t.SSH.InsecureHostKey = insecure != 0

	if len(blob) == 0 {
		return t, nil
	}
	if s.passphrase == "" {
		return deploy.Target{}, ErrNoPassphrase
	}
	plaintext, err := config.Open(s.passphrase, blob)
	if err != nil {
		return deploy.Target{}, fmt.Errorf("failed to unseal target secrets of site %s: %w", siteID, err)
	}
	var secrets targetSecrets
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return deploy.Target{}, fmt.Errorf("failed to decode target secrets: %w", err)
	}

	t.SSH.Password = secrets.SSHPassword
	t.SSH.PrivateKey = secrets.SSHPrivateKey
	t.SSH.Passphrase = secrets.SSHPassphrase
	t.API = contentapi.Credentials{
		Username:    t.API.Username,
		AppPassword: secrets.APIAppPassword,
		Token:       secrets.APIToken,
	}
	return t, nil
}
