package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/store"
)

// Setting keys. Values are stored as text; pinned ids as a JSON array.
const (
	SettingLocale       = "locale"
	SettingTheme        = "theme"
	SettingThreeStep    = "isThreeStepEnabled"
	SettingPinnedTaskID = "pinnedTaskIds"
)

var (
	locales = []string{"en", "sv"}
	themes  = []string{"light", "dark", "system"}
)

// Settings is typed access to the per-user settings table. Settings are
// local to the device and never pushed.
type Settings struct {
	store *store.Store
}

// Get returns the value stored for key, or def when it is unset.
func (st *Settings) Get(ctx context.Context, key, def string) (string, error) {
	v, err := st.store.GetSetting(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return def, nil
	}
	return v, err
}

func (st *Settings) Put(ctx context.Context, key, value string) error {
	return st.store.SetSetting(ctx, key, value)
}

func (st *Settings) Locale(ctx context.Context) (string, error) {
	return st.Get(ctx, SettingLocale, "en")
}

func (st *Settings) SetLocale(ctx context.Context, locale string) error {
	if !slices.Contains(locales, locale) {
		return fmt.Errorf("unsupported locale %q", locale)
	}
	return st.Put(ctx, SettingLocale, locale)
}

func (st *Settings) Theme(ctx context.Context) (string, error) {
	return st.Get(ctx, SettingTheme, "system")
}

func (st *Settings) SetTheme(ctx context.Context, theme string) error {
	if !slices.Contains(themes, theme) {
		return fmt.Errorf("unsupported theme %q", theme)
	}
	return st.Put(ctx, SettingTheme, theme)
}

// ThreeStepEnabled reports whether new items start in process mode.
func (st *Settings) ThreeStepEnabled(ctx context.Context) (bool, error) {
	v, err := st.Get(ctx, SettingThreeStep, "false")
	if err != nil {
		return false, err
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return on, nil
}

func (st *Settings) SetThreeStepEnabled(ctx context.Context, on bool) error {
	return st.Put(ctx, SettingThreeStep, strconv.FormatBool(on))
}

// PinnedIDs returns the pinned item ids in pin order. A malformed value
// reads as empty.
func (st *Settings) PinnedIDs(ctx context.Context) ([]string, error) {
	v, err := st.Get(ctx, SettingPinnedTaskID, "[]")
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(v), &ids); err != nil {
		return nil, nil
	}
	return ids, nil
}

func (st *Settings) setPinned(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return st.Put(ctx, SettingPinnedTaskID, string(b))
}

// TogglePinned pins id, or unpins it when already pinned. It reports
// whether id is pinned afterwards.
func (st *Settings) TogglePinned(ctx context.Context, id string) (bool, error) {
	ids, err := st.PinnedIDs(ctx)
	if err != nil {
		return false, err
	}
	if i := slices.Index(ids, id); i >= 0 {
		return false, st.setPinned(ctx, slices.Delete(ids, i, i+1))
	}
	return true, st.setPinned(ctx, append(ids, id))
}

// Unpin removes id from the pinned list and reports whether it was there.
func (st *Settings) Unpin(ctx context.Context, id string) (bool, error) {
	ids, err := st.PinnedIDs(ctx)
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	return true, st.setPinned(ctx, slices.Delete(ids, i, i+1))
}
