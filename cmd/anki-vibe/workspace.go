package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/hieucao/anki-vibe/internal/anki"
	"github.com/hieucao/anki-vibe/internal/config"
	"github.com/hieucao/anki-vibe/internal/localrepo"
	"github.com/hieucao/anki-vibe/internal/profile"
	"github.com/hieucao/anki-vibe/internal/pull"
	"github.com/hieucao/anki-vibe/internal/schema"
	"github.com/hieucao/anki-vibe/internal/secret"
	"github.com/hieucao/anki-vibe/internal/state"
	ankisync "github.com/hieucao/anki-vibe/internal/sync"
	"github.com/hieucao/anki-vibe/internal/ui"
)

// errQuiet is returned when the failure was already reported.
var errQuiet = errors.New("command failed")

// workspace is what a command operates on: an anki-vibe.toml project or
// a whole-profile data folder.
type workspace struct {
	project *config.Project // nil in whole-profile mode
	profile profile.Resolution
	root    string // whole-profile data folder
	repo    *localrepo.Repository
}

// resolveWorkspace picks project mode when a project file is found and no
// --profile was given, and whole-profile mode otherwise.
func resolveWorkspace(ctx context.Context, out io.Writer) (*workspace, error) {
	detector := profile.NewDetector(logger.Logger)
	ws := &workspace{repo: localrepo.New(afero.NewOsFs())}

	if flagProfile == "" {
		path, err := config.FindProject(".")
		switch {
		case err == nil:
			p, err := config.LoadProject(path)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(out, "%s Found project %s at %s\n", ui.RenderAccent("📂"), p.Project.Name, path)
			ws.project = p
		case !errors.Is(err, config.ErrProjectNotFound):
			return nil, err
		}
	}

	projectProfile := ""
	if ws.project != nil {
		projectProfile = ws.project.Project.AnkiProfile
	}
	res, err := profile.Resolve(ctx, flagProfile, projectProfile, detector, flagYes, ui.Confirm)
	if errors.Is(err, profile.ErrUndetected) {
		return nil, fmt.Errorf("%w\n  open a profile in Anki or pass --profile", err)
	}
	if err != nil {
		return nil, err
	}
	ws.profile = res
	if res.Source == "flag" && res.Detected != "" && res.Detected != res.Profile {
		fmt.Fprintf(out, "%s Targeting %q while Anki is running %q\n", ui.RenderWarn("⚠"), res.Profile, res.Detected)
	}
	if res.Source == "detected" {
		fmt.Fprintf(out, "%s Detected active profile: %s\n", ui.RenderPass("✓"), res.Profile)
	}

	if ws.project == nil {
		root, err := config.ProfileRoot(settings.DataDir, res.Profile)
		if err != nil {
			return nil, err
		}
		ws.root = root
	}
	return ws, nil
}

// statePath is the state database for the workspace.
func (ws *workspace) statePath() string {
	if ws.project != nil {
		return ws.project.StatePath()
	}
	return config.ProfileStatePath(ws.root)
}

// label names the workspace in prompts and output.
func (ws *workspace) label() string {
	if ws.project != nil {
		return fmt.Sprintf("project %q (profile %s)", ws.project.Project.Name, ws.profile.Profile)
	}
	return fmt.Sprintf("profile %q", ws.profile.Profile)
}

// collections lists what sync and watch operate on.
func (ws *workspace) collections() ([]ankisync.Collection, error) {
	if ws.project != nil {
		out := make([]ankisync.Collection, 0, len(ws.project.Targets))
		for _, t := range ws.project.Targets {
			out = append(out, ankisync.Collection{
				Name:        t.Name,
				Dir:         ws.project.TargetDir(t),
				Model:       t.Model,
				DefaultDeck: t.Deck,
			})
		}
		return out, nil
	}

	dirs, err := ws.repo.Collections(ws.root)
	if err != nil {
		return nil, err
	}
	out := make([]ankisync.Collection, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, ankisync.Collection{
			Name:        filepath.Base(dir),
			Dir:         dir,
			DefaultDeck: schema.DefaultDeck,
		})
	}
	return out, nil
}

// pullTargets lists project targets for pull.
func (ws *workspace) pullTargets() []pull.Target {
	out := make([]pull.Target, 0, len(ws.project.Targets))
	for _, t := range ws.project.Targets {
		out = append(out, pull.Target{
			Name:  t.Name,
			Dir:   ws.project.TargetDir(t),
			Model: t.Model,
			Query: t.Query,
		})
	}
	return out
}

// openStore opens the workspace's state database.
func (ws *workspace) openStore(ctx context.Context) (*state.Store, error) {
	return state.Open(ctx, ws.statePath(), logger.Logger)
}

// newClient builds the AnkiConnect client from settings. The API key
// comes from settings, then the keyring.
func newClient() *anki.Client {
	return anki.New(anki.Config{
		URL:       settings.AnkiConnect.URL,
		Timeout:   settings.AnkiConnect.Timeout,
		RateLimit: settings.AnkiConnect.RateLimit,
		APIKey:    secret.ResolveAPIKey(settings.AnkiConnect.APIKey, secret.Open),
		Logger:    logger.Logger,
	})
}

// connect creates a client and checks that AnkiConnect answers with a
// supported version.
func connect(ctx context.Context) (*anki.Client, error) {
	client := newClient()
	if _, err := client.CheckVersion(ctx); err != nil {
		if anki.IsConnection(err) {
			return nil, fmt.Errorf("%w\n  is Anki running with AnkiConnect at %s?", err, client.URL())
		}
		return nil, err
	}
	return client, nil
}

// confirm asks unless --yes was given.
func confirm(question string) error {
	if flagYes {
		return nil
	}
	ok, err := ui.Confirm(question)
	if err != nil {
		return err
	}
	if !ok {
		return profile.ErrDeclined
	}
	return nil
}
