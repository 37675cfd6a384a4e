package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/offsync/internal/config"
	"github.com/dropDatabas3/offsync/internal/engine"
	"github.com/dropDatabas3/offsync/internal/httpdebug"
	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/netmon"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
	"github.com/dropDatabas3/offsync/internal/queue"
)

// client habla con el listener de debug de un daemon corriendo.
type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	var (
		debugURL = envOr("OFFSYNC_DEBUG_URL", "http://127.0.0.1:7117")
		out      = envOr("OFFSYNC_OUT", "text")
	)
	c := &client{BaseURL: debugURL, OutFormat: out, HTTP: &http.Client{Timeout: 10 * time.Second}}

	root := &cobra.Command{
		Use:   "offsync",
		Short: "Cache offline-first y sincronización de mutaciones",
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Corre el engine como daemon local",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "ruta al config YAML (opcional)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Muestra el SyncStatus del daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, b, err := c.do(http.MethodGet, "/status", nil)
			if err != nil {
				return err
			}
			c.print(st, b)
			return nil
		},
	}

	queueCmd := &cobra.Command{Use: "queue", Short: "Opera sobre la cola de mutaciones"}

	queueList := &cobra.Command{
		Use:   "list",
		Short: "Lista las mutaciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, b, err := c.do(http.MethodGet, "/queue", nil)
			if err != nil {
				return err
			}
			c.print(st, b)
			return nil
		},
	}

	var addKind, addBody string
	var addMax int
	queueAdd := &cobra.Command{
		Use:   "add <target>",
		Short: "Encola una mutación",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"kind": addKind, "target": args[0], "max_attempts": addMax}
			if addBody != "" {
				payload["body"] = json.RawMessage(addBody)
			}
			b, _ := json.Marshal(payload)
			st, rb, err := c.do(http.MethodPost, "/queue", b)
			if err != nil {
				return err
			}
			c.print(st, rb)
			return nil
		},
	}
	queueAdd.Flags().StringVarP(&addKind, "kind", "k", "patch", "create | replace | delete | patch")
	queueAdd.Flags().StringVarP(&addBody, "body", "b", "", "payload JSON")
	queueAdd.Flags().IntVar(&addMax, "max-attempts", 0, "reintentos máximos (0 = default)")

	queueCancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancela una mutación pendiente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, b, err := c.do(http.MethodDelete, "/queue/"+args[0], nil)
			if err != nil {
				return err
			}
			c.print(st, b)
			return nil
		},
	}
	queueCmd.AddCommand(queueList, queueAdd, queueCancel)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Fuerza una pasada de drain",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, b, err := c.do(http.MethodPost, "/sync", nil)
			if err != nil {
				return err
			}
			c.print(st, b)
			return nil
		},
	}

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Genera una clave maestra para cifrado at-rest",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := make([]byte, 32)
			if _, err := rand.Read(k); err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(k))
			return nil
		},
	}

	root.AddCommand(serve, statusCmd, queueCmd, syncCmd, keygen)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, App: "offsync"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	if cfg.Sync.BaseURL == "" {
		return fmt.Errorf("sync.base_url (u OFFSYNC_SYNC_BASE_URL) es requerido para serve")
	}
	probeURL := cfg.Network.ProbeURL
	if probeURL == "" {
		probeURL = cfg.Sync.BaseURL
	}

	src := netmon.NewProbeSource(probeURL, cfg.ProbeInterval())
	src.Start()
	defer src.Stop()

	eng, err := engine.New(engine.Options{
		Config:   cfg,
		Source:   src,
		Executor: queue.NewHTTPExecutor(cfg.Sync.BaseURL),
	})
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	addr := cfg.Debug.Addr
	if addr == "" {
		addr = "127.0.0.1:7117"
	}
	dbg := httpdebug.New(eng, addr, logger.Named("httpdebug"))
	dbg.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = dbg.Stop(ctx)
	}()

	log.Info("offsync daemon running; ctrl-c para salir")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
