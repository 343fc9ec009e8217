package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/persistence"
	"sitebuilder/pkg/remote"
)

// deployOptions holds the deploy flags. Credentials are never passed on the command line:
// the *-secret flags name a secret resolved through the secrets file or the environment.
//
//nolint:govet // Field grouping follows the flag groups
type deployOptions struct {
	siteID string
	json   bool

	url                 string
	sshHost             string
	sshPort             int
	sshUser             string
	sshKeyFile          string
	sshPasswordSecret   string
	sshPassphraseSecret string
	workingDirectory    string
	knownHosts          string
	insecureHostKey     bool
	apiUser             string
	apiPasswordSecret   string
	apiTokenSecret      string

	core                deploy.CoreInstall
	dbPasswordSecret    string
	adminPasswordSecret string
}

func newDeployCmd(root *rootOptions) *cobra.Command {
	opts := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a generated site to its WordPress target",
		Long: `Deploy applies the stored plan of a site to a WordPress host over SSH (wp-cli) and the
WordPress REST API. Target flags are stored with the site; later deploys reuse them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.siteID, "site-id", "", "Site to deploy")
	f.BoolVar(&opts.json, "json", false, "Print the deployment report as JSON")

	f.StringVar(&opts.url, "url", "", "Public site URL (stores a new target when set)")
	f.StringVar(&opts.sshHost, "ssh-host", "", "SSH host")
	f.IntVar(&opts.sshPort, "ssh-port", 22, "SSH port")
	f.StringVar(&opts.sshUser, "ssh-user", "", "SSH user")
	f.StringVar(&opts.sshKeyFile, "ssh-key", "", "Path to a PEM private key")
	f.StringVar(&opts.sshPasswordSecret, "ssh-password-secret", "", "Secret holding the SSH password")
	f.StringVar(&opts.sshPassphraseSecret, "ssh-key-passphrase-secret", "", "Secret holding the private key passphrase")
	f.StringVar(&opts.workingDirectory, "wd", "", "WordPress directory on the host (default from config)")
	f.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file (default from config)")
	f.BoolVar(&opts.insecureHostKey, "insecure-host-key", false, "Accept any SSH host key")
	f.StringVar(&opts.apiUser, "api-user", "", "WordPress user for the REST API")
	f.StringVar(&opts.apiPasswordSecret, "api-password-secret", "", "Secret holding the application password")
	f.StringVar(&opts.apiTokenSecret, "api-token-secret", "", "Secret holding a bearer token")

	f.StringVar(&opts.core.DBName, "db-name", "", "Database name, for installing WordPress core")
	f.StringVar(&opts.core.DBUser, "db-user", "", "Database user")
	f.StringVar(&opts.core.DBHost, "db-host", "", "Database host")
	f.StringVar(&opts.dbPasswordSecret, "db-password-secret", "", "Secret holding the database password")
	f.StringVar(&opts.core.Title, "title", "", "Site title (default: the business name)")
	f.StringVar(&opts.core.AdminUser, "admin-user", "", "WordPress admin user")
	f.StringVar(&opts.core.AdminEmail, "admin-email", "", "WordPress admin email")
	f.StringVar(&opts.adminPasswordSecret, "admin-password-secret", "", "Secret holding the admin password")

	_ = cmd.MarkFlagRequired("site-id")
	return cmd
}

func runDeploy(cmd *cobra.Command, root *rootOptions, opts *deployOptions) error {
	a, err := openApp(root, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	site, err := a.store.GetSite(ctx, opts.siteID)
	if err != nil {
		return err
	}
	plan, err := a.store.LoadPlan(ctx, opts.siteID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("site %s has no deployment plan; run generate again: %w", opts.siteID, err)
		}
		return err
	}

	target, err := resolveTarget(cmd, a, opts)
	if err != nil {
		return err
	}

	core, err := opts.coreInstall(site.Name)
	if err != nil {
		return err
	}
	plan.Core = core
	if plan.Permalink == "" {
		plan.Permalink = a.cfg.Deploy.Permalink
	}
	plan.Navigation = plan.Navigation || a.cfg.Deploy.Navigation

	engineOpts := []deploy.Option{
		deploy.WithProgress(a.sink),
		deploy.WithRecorder(a.recorder),
		deploy.WithContentFactory(func(siteURL string, creds contentapi.Credentials) (deploy.ContentAPI, error) {
			c, err := contentapi.New(siteURL, creds, contentapi.WithTimeout(a.cfg.Deploy.HTTPTimeout))
			if err != nil {
				return nil, err
			}
			return c, nil
		}),
	}
	if a.cfg.Deploy.ParallelOptionalPlugins {
		engineOpts = append(engineOpts,
			deploy.WithChannelFactory(func(t remote.Target) remote.Channel { return remote.Serialize(remote.NewSSH(t)) }),
			deploy.WithParallelOptionalPlugins(a.cfg.Deploy.MaxParallelPlugins),
		)
	}

	engine := deploy.New(a.store, engineOpts...)
	report, deployErr := engine.Deploy(ctx, deploy.Request{SiteID: opts.siteID, Target: target, Plan: plan})
	if report != nil {
		if opts.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	return deployErr
}

// resolveTarget builds the target from flags and stores it, or loads the stored one.
func resolveTarget(cmd *cobra.Command, a *app, opts *deployOptions) (deploy.Target, error) {
	ctx := cmd.Context()
	var target deploy.Target

	if opts.url == "" {
		t, err := a.store.LoadTarget(ctx, opts.siteID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return deploy.Target{}, fmt.Errorf("no stored target for site %s; pass --url and --ssh-host: %w", opts.siteID, err)
			}
			return deploy.Target{}, err
		}
		target = t
	} else {
		t, err := opts.target()
		if err != nil {
			return deploy.Target{}, err
		}
		if err := a.store.SaveTarget(ctx, opts.siteID, t); err != nil {
			if errors.Is(err, persistence.ErrNoPassphrase) {
				return deploy.Target{}, fmt.Errorf("storing target credentials needs %s or a project password: %w", envPassword, err)
			}
			return deploy.Target{}, err
		}
		target = t
	}

	if target.SSH.WorkingDirectory == "" {
		target.SSH.WorkingDirectory = a.cfg.Deploy.WorkingDirectory
	}
	if target.SSH.KnownHostsFile == "" {
		target.SSH.KnownHostsFile = config.ResolvePath(a.cfg.Deploy.KnownHostsFile)
	}
	target.SSH.DialTimeout = a.cfg.Deploy.SSHDialTimeout
	return target, nil
}

func (o *deployOptions) target() (deploy.Target, error) {
	t := deploy.Target{
		URL: o.url,
		SSH: remote.Target{
			Host:             o.sshHost,
			Port:             o.sshPort,
			Username:         o.sshUser,
			WorkingDirectory: o.workingDirectory,
			KnownHostsFile:   o.knownHosts,
			InsecureHostKey:  o.insecureHostKey,
		},
		API: contentapi.Credentials{Username: o.apiUser},
	}

	if o.sshKeyFile != "" {
		key, err := os.ReadFile(o.sshKeyFile)
		if err != nil {
			return deploy.Target{}, fmt.Errorf("failed to read SSH key: %w", err)
		}
		t.SSH.PrivateKey = key
	}

	var err error
	if t.SSH.Password, err = optionalSecret(o.sshPasswordSecret); err != nil {
		return deploy.Target{}, err
	}
	if t.SSH.Passphrase, err = optionalSecret(o.sshPassphraseSecret); err != nil {
		return deploy.Target{}, err
	}
	if t.API.AppPassword, err = optionalSecret(o.apiPasswordSecret); err != nil {
		return deploy.Target{}, err
	}
	if t.API.Token, err = optionalSecret(o.apiTokenSecret); err != nil {
		return deploy.Target{}, err
	}
	return t, nil
}

// coreInstall returns the core settings when --db-name is set, nil otherwise.
func (o *deployOptions) coreInstall(siteName string) (*deploy.CoreInstall, error) {
	if o.core.DBName == "" {
		return nil, nil
	}
	core := o.core
	if core.Title == "" {
		core.Title = siteName
	}

	var err error
	if core.DBPassword, err = optionalSecret(o.dbPasswordSecret); err != nil {
		return nil, err
	}
	if core.AdminPassword, err = optionalSecret(o.adminPasswordSecret); err != nil {
		return nil, err
	}
	return &core, nil
}

func optionalSecret(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	value, err := config.GetSecret(name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve credential: %w", err)
	}
	return value, nil
}

func printReport(w io.Writer, r *deploy.Report) {
	icon := "🎉"
	if r.Status != deploy.SiteDeployed {
		icon = "❌"
	}
	fmt.Fprintf(w, "%s site %s %s (run %s, %s)\n", icon, r.SiteID, r.Status, r.RunID,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	printSteps(w, r.Steps)
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "⚠️ %s\n", warning)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
		if len(r.Applied) > 0 {
			fmt.Fprintln(w, "changes already applied:")
			for _, change := range r.Applied {
				fmt.Fprintf(w, "  - %s\n", change)
			}
		}
	}
}
