package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sadopc/done/internal/tasks"
)

func newSettingsCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			set := s.svc.Settings()
			locale, err := set.Locale(ctx)
			if err != nil {
				return err
			}
			theme, err := set.Theme(ctx)
			if err != nil {
				return err
			}
			threeStep, err := set.ThreeStepEnabled(ctx)
			if err != nil {
				return err
			}
			pinned, err := set.PinnedIDs(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %s\n", tasks.SettingLocale, locale)
			fmt.Fprintf(out, "%-20s %s\n", tasks.SettingTheme, theme)
			fmt.Fprintf(out, "%-20s %t\n", tasks.SettingThreeStep, threeStep)
			fmt.Fprintf(out, "%-20s %d\n", tasks.SettingPinnedTaskID, len(pinned))
			return nil
		},
	}

	set := &cobra.Command{
		Use:       "set <locale|theme|isThreeStepEnabled> <value>",
		Short:     "Change a setting",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{tasks.SettingLocale, tasks.SettingTheme, tasks.SettingThreeStep},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			st := s.svc.Settings()
			switch args[0] {
			case tasks.SettingLocale:
				return st.SetLocale(ctx, args[1])
			case tasks.SettingTheme:
				return st.SetTheme(ctx, args[1])
			case tasks.SettingThreeStep:
				on, err := strconv.ParseBool(args[1])
				if err != nil {
					return fmt.Errorf("%s must be true or false", tasks.SettingThreeStep)
				}
				return st.SetThreeStepEnabled(ctx, on)
			default:
				return fmt.Errorf("unknown setting %q", args[0])
			}
		},
	}

	cmd.AddCommand(set)
	return cmd
}
