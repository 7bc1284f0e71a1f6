package main

import (
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/render"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
	Args:  cobra.NoArgs,
	RunE:  runShowProfile,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE:  runShowProfile,
}

func runShowProfile(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	return showProfile(cmd, svc)
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		// unset flags keep the stored value
		var form chat.ProfileForm
		if p, err := svc.MyProfile(cmd.Context()); err != nil {
			return err
		} else if p != nil {
			form = formOf(p)
		}
		flags := cmd.Flags()
		if flags.Changed("username") {
			form.Username, _ = flags.GetString("username")
		}
		if flags.Changed("full-name") {
			form.FullName, _ = flags.GetString("full-name")
		}
		if flags.Changed("avatar-url") {
			form.AvatarURL, _ = flags.GetString("avatar-url")
		}
		p, err := svc.SaveProfile(cmd.Context(), form)
		if err != nil {
			return err
		}
		render.Profiles(cmd.OutOrStdout(), []chat.Profile{*p})
		return nil
	},
}

func formOf(p *chat.Profile) chat.ProfileForm {
	var f chat.ProfileForm
	if p.Username != nil {
		f.Username = *p.Username
	}
	if p.FullName != nil {
		f.FullName = *p.FullName
	}
	if p.AvatarURL != nil {
		f.AvatarURL = *p.AvatarURL
	}
	return f
}

func init() {
	profileSetCmd.Flags().StringP("username", "u", "", "3-20 lowercase letters, digits or _")
	profileSetCmd.Flags().String("full-name", "", "Display name, empty to clear")
	profileSetCmd.Flags().String("avatar-url", "", "Avatar image url, empty to clear")

	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
