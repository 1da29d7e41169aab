package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
)

// LegacyFilename is the JSON state file written by earlier versions.
const LegacyFilename = ".sync_state.json"

// legacyState is the JSON layout of LegacyFilename.
type legacyState struct {
	Models map[string]string `json:"models"`
	Notes  map[string]string `json:"notes"`
}

// importLegacy seeds an empty database from a legacy JSON state file and
// renames the file so the import happens once. A missing file is not an
// error. An unreadable or malformed file is logged and skipped.
func (s *Store) importLegacy(ctx context.Context, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path derived from the state directory
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to read legacy state, ignoring")
		return nil
	}

	st, err := s.StatsContext(ctx)
	if err != nil {
		return err
	}
	if st.Notes > 0 || st.Models > 0 {
		s.logger.Debug().Str("path", path).Msg("state database already populated, legacy state not imported")
		return nil
	}

	var legacy legacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("legacy state is corrupt, starting from an empty baseline")
		return nil
	}

	var notes, models int
	for key, hash := range legacy.Notes {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logger.Warn().Str("key", key).Msg("skipping legacy note state with non-numeric id")
			continue
		}
		if err := s.SetNoteHashContext(ctx, id, hash); err != nil {
			return fmt.Errorf("failed to import legacy state: %w", err)
		}
		notes++
	}
	for name, hash := range legacy.Models {
		if err := s.SetModelHashContext(ctx, name, hash); err != nil {
			return fmt.Errorf("failed to import legacy state: %w", err)
		}
		models++
	}

	if err := os.Rename(path, path+".imported"); err != nil {
		return fmt.Errorf("failed to retire legacy state file: %w", err)
	}

	s.logger.Info().Int("notes", notes).Int("models", models).Str("path", path).Msg("imported legacy state")
	return nil
}
