package main

import (
	"fmt"

	"github.com/pelusa-v/wachat/internal/render"
	"github.com/spf13/cobra"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List accepted contacts, or manage requests",
	Args:  cobra.NoArgs,
	RunE:  listFriends,
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accepted contacts",
	Args:  cobra.NoArgs,
	RunE:  listFriends,
}

func listFriends(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	friends, err := svc.Friends(cmd.Context())
	if err != nil {
		return err
	}
	render.Friends(cmd.OutOrStdout(), friends)
	return nil
}

var contactRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List pending requests sent to you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		reqs, err := svc.IncomingRequests(cmd.Context())
		if err != nil {
			return err
		}
		render.Requests(cmd.OutOrStdout(), reqs)
		return nil
	},
}

var contactAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Send a contact request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		c, err := svc.SendContactRequest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Request %s sent.\n", c.ID)
		return nil
	},
}

var contactAcceptCmd = &cobra.Command{
	Use:   "accept <request-id>",
	Short: "Accept a pending contact request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		if err := svc.AcceptContact(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Accepted.")
		return nil
	},
}

func init() {
	contactsCmd.AddCommand(contactListCmd, contactRequestsCmd, contactAddCmd, contactAcceptCmd)
	rootCmd.AddCommand(contactsCmd)
}
