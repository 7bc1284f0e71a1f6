package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pelusa-v/wachat/internal/config"
	"github.com/pelusa-v/wachat/internal/handlers"
	"github.com/pelusa-v/wachat/internal/live"
	"github.com/pelusa-v/wachat/internal/state"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API and conversation sockets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		hub := live.NewHub()
		go hub.Start(ctx)

		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		server := handlers.NewServer(handlers.Hosted(client), hub, state.NewRegistry(), handlers.Config{
			HistoryLimit:   cfg.HistoryLimit,
			SearchLimit:    cfg.SearchLimit,
			SearchDebounce: cfg.SearchDebounce,
			Location:       cfg.Location,
		})
		server.Routes(app)

		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdown); err != nil {
				jww.WARN.Printf("[serve] shutdown: %v", err)
			}
		}()

		jww.INFO.Printf("[serve] listening on %s, service %s", cfg.Listen, cfg.ServiceURL)
		return app.Listen(cfg.Listen)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on")
	viper.BindPFlag(config.KeyListen, serveCmd.Flags().Lookup("listen"))

	serveCmd.Flags().Duration("search-debounce", 0, "Quiet period before a socket user search runs")
	viper.BindPFlag(config.KeySearchDebounce, serveCmd.Flags().Lookup("search-debounce"))

	rootCmd.AddCommand(serveCmd)
}
