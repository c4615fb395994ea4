package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"container-autopilot/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Executar o autopilot com a API web de observação",
	Long: `Executa o control loop e sobe um servidor HTTP com status da frota,
histórico de ações, samples recentes e métricas Prometheus em /metrics.

Endpoints autenticados exigem "Authorization: Bearer <AUTOPILOT_WEB_TOKEN>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		eng, tracker, cfg, stopHistory, err := buildEngine()
		if err != nil {
			return err
		}

		port := cfg.WebPort
		if cmd.Flags().Changed("port") {
			port = webPort
		}

		if err := eng.Start(); err != nil {
			return fmt.Errorf("falha ao iniciar control loop: %w", err)
		}
		defer func() {
			eng.Stop()
			stopHistory()
		}()

		server := web.NewServer(eng, tracker, port, cfg.WebToken, debug)
		return server.Start()
	},
}

func init() {
	webCmd.Flags().IntVar(&webPort, "port", 8080, "Porta do servidor web")
	rootCmd.AddCommand(webCmd)
}
