package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/favorites"
)

// NewFavoritesCommand creates the favorites command with all subcommands
func NewFavoritesCommand(container *app.Container) *cobra.Command {
	favCmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage pinned commands offered first in suggestions",
	}

	favCmd.AddCommand(
		newFavoritesListCommand(container),
		newFavoritesAddCommand(container),
		newFavoritesRemoveCommand(container),
	)

	return favCmd
}

func newFavoritesListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := container.FavoritesStore.Favorites(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(favs) == 0 {
				fmt.Fprintln(out, MsgNoFavorites)
				return nil
			}
			for _, fav := range favs {
				fmt.Fprintf(out, "%-20s %s\n", fav.Name, fav.Command)
				if fav.Description != "" {
					fmt.Fprintf(out, "%-20s # %s\n", "", fav.Description)
				}
			}
			return nil
		},
	}
}

func newFavoritesAddCommand(container *app.Container) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <name> <command...>",
		Short: "Save or replace a favorite",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fav := domain.Favorite{
				Name:        args[0],
				Command:     strings.Join(args[1:], " "),
				Description: description,
			}
			if err := container.FavoritesStore.Save(cmd.Context(), fav); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved favorite %q\n", fav.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Short note shown with the suggestion")
	return cmd
}

func newFavoritesRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a favorite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := container.FavoritesStore.Remove(cmd.Context(), args[0])
			if errors.Is(err, favorites.ErrNotFound) {
				return fmt.Errorf("no favorite named %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed favorite %q\n", args[0])
			return nil
		},
	}
}
